package milvus

import (
	"errors"
	"testing"

	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/vectordb"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricType(t *testing.T) {
	mt, err := metricType(vectordb.MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, entity.COSINE, mt)

	mt, err = metricType(vectordb.MetricDot)
	require.NoError(t, err)
	assert.Equal(t, entity.IP, mt)

	_, err = metricType(vectordb.MetricManhattan)
	assert.True(t, errors.Is(err, errs.ErrInvalidParameter))
}

func TestDistanceFromScore(t *testing.T) {
	assert.InDelta(t, 0.25, distanceFromScore(vectordb.MetricCosine, 0.75), 1e-6)
	assert.InDelta(t, -3.0, distanceFromScore(vectordb.MetricDot, 3), 1e-6)
	// L2 分数是平方距离
	assert.InDelta(t, 2.0, distanceFromScore(vectordb.MetricEuclidean, 4), 1e-6)
}
