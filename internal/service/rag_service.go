package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"lite-rag-go/internal/config"
	"lite-rag-go/internal/model"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/llm"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/templates"
	"lite-rag-go/pkg/vectordb"
)

// CitationMode 决定 citations 如何从 contexts 中选出。
type CitationMode string

const (
	// CitationAll 把全部检索结果都作为引用。
	CitationAll CitationMode = "all"
	// CitationReferenced 只保留回答中以 [n] 等标记实际引用的上下文。
	CitationReferenced CitationMode = "referenced"
)

// ParseCitationMode 解析配置中的引用模式，空串视为 all。
func ParseCitationMode(s string) (CitationMode, error) {
	switch CitationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CitationAll:
		return CitationAll, nil
	case CitationReferenced:
		return CitationReferenced, nil
	}
	return "", errs.InvalidParameter("service.ParseCitationMode", "未知的 citation_mode: %q", s)
}

// Retriever 是编排器依赖的检索接口，由 vectordb.Gateway 实现。
type Retriever interface {
	Query(ctx context.Context, projectID, text string, topK int, threshold float64) ([]vectordb.Match, error)
}

// RAGService 把检索和生成组合成一次问答请求。
type RAGService interface {
	GenerateAnswer(ctx context.Context, req model.RagRequest) (*model.RagResult, error)
}

type ragService struct {
	retriever     Retriever
	llmClient     llm.Client
	templates     *templates.Resolver
	defaultLocale string
	citationMode  CitationMode
}

// NewRAGService 创建一个新的 RAGService 实例。
func NewRAGService(retriever Retriever, llmClient llm.Client, resolver *templates.Resolver, cfg config.RAGConfig) (RAGService, error) {
	mode, err := ParseCitationMode(cfg.CitationMode)
	if err != nil {
		return nil, err
	}
	return &ragService{
		retriever:     retriever,
		llmClient:     llmClient,
		templates:     resolver,
		defaultLocale: cfg.DefaultLocale,
		citationMode:  mode,
	}, nil
}

// GenerateAnswer 依次执行 校验 -> 检索 -> 非空检查 -> 组装提示词 -> 生成 -> 封装结果。
// 检索为空时返回 NoRelevantContext，此时不会调用生成网关。
func (s *ragService) GenerateAnswer(ctx context.Context, req model.RagRequest) (*model.RagResult, error) {
	const op = "service.GenerateAnswer"

	if err := validateRagRequest(op, req); err != nil {
		return nil, err
	}
	locale := req.Locale
	if locale == "" {
		locale = s.defaultLocale
	}
	threshold := 0.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	matches, err := s.retriever.Query(ctx, req.ProjectID, req.Query, req.TopK, threshold)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		log.Infof("[RAGService] 项目 %s 在阈值 %.2f 下没有相关上下文", req.ProjectID, threshold)
		return nil, errs.New(errs.KindNoRelevantContext, op, "没有满足阈值 %.2f 的检索结果", threshold)
	}

	messages, err := s.compose(locale, req.Query, matches)
	if err != nil {
		return nil, err
	}

	answer, err := s.llmClient.Generate(ctx, messages, &llm.GenerationParams{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindInvalidParameter {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindRagGenerationFailed, op, err)
	}

	citations := matches
	if s.citationMode == CitationReferenced {
		citations = ReferencedContexts(answer, matches)
	}
	log.Infof("[RAGService] 项目 %s 生成完成, contexts: %d, citations: %d", req.ProjectID, len(matches), len(citations))
	return &model.RagResult{Answer: answer, Citations: citations, Contexts: matches}, nil
}

func validateRagRequest(op string, req model.RagRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return errs.InvalidParameter(op, "query 不能为空")
	}
	if req.TopK < 1 {
		return errs.InvalidParameter(op, "top_k 必须 >= 1, 当前为 %d", req.TopK)
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return errs.InvalidParameter(op, "threshold 必须在 [0, 1] 内, 当前为 %v", *req.Threshold)
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return errs.InvalidParameter(op, "temperature 必须在 [0, 2] 内, 当前为 %v", *req.Temperature)
	}
	if req.MaxOutputTokens != nil && *req.MaxOutputTokens <= 0 {
		return errs.InvalidParameter(op, "max_output_tokens 必须为正整数, 当前为 %d", *req.MaxOutputTokens)
	}
	return nil
}

// compose 用 locale 对应的 rag 模板渲染消息，检索结果按 rag_context_entry 逐条序列化（编号从 1 开始）。
func (s *ragService) compose(locale, query string, matches []vectordb.Match) ([]llm.Message, error) {
	entry, err := s.templates.Resolve(locale, templates.NameContextEntry)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.Resolve(locale, templates.NameRAG)
	if err != nil {
		return nil, err
	}

	entries := make([]string, len(matches))
	for i, m := range matches {
		text, err := templates.RenderText(entry, map[string]string{
			"index":   strconv.Itoa(i + 1),
			"content": m.Content,
		})
		if err != nil {
			return nil, err
		}
		entries[i] = text
	}

	rendered, err := templates.Render(tmpl, map[string]string{
		"contexts": strings.Join(entries, "\n"),
		"query":    query,
	})
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, len(rendered))
	for i, m := range rendered {
		messages[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
	}
	return messages, nil
}

var citationMarker = regexp.MustCompile(`(?i)\[\s*(?:(?:references?|refs?|sources?|docs?)\s*:\s*)?(\d+(?:\s*,\s*\d+)*)\s*\]`)

// ReferencedContexts 解析回答中的引用标记（[1]、[ref: 2]、[doc: 1, 3] 等），
// 按 contexts 原有顺序返回被引用的条目。越界的编号被忽略。
func ReferencedContexts(answer string, contexts []vectordb.Match) []vectordb.Match {
	cited := make(map[int]struct{})
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 || n > len(contexts) {
				continue
			}
			cited[n] = struct{}{}
		}
	}
	out := make([]vectordb.Match, 0, len(cited))
	for i, c := range contexts {
		if _, ok := cited[i+1]; ok {
			out = append(out, c)
		}
	}
	return out
}
