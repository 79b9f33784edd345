// Package errs 定义了 RAG 核心对外统一的错误种类。
// 各网关把后端特有的错误翻译成这里的 Kind，调用方只需要根据 Kind 分支。
package errs

import (
	"errors"
	"fmt"
)

// Kind 表示错误的类别。
type Kind string

const (
	KindInvalidParameter    Kind = "InvalidParameter"
	KindIndexNotFound       Kind = "IndexNotFound"
	KindIndexEmpty          Kind = "IndexEmpty"
	KindNoRelevantContext   Kind = "NoRelevantContext"
	KindProviderError       Kind = "ProviderError"
	KindGenerationFailed    Kind = "GenerationFailed"
	KindRagGenerationFailed Kind = "RagGenerationFailed"
	KindTemplateNotFound    Kind = "TemplateNotFound"
	KindDimensionMismatch   Kind = "DimensionMismatch"
	KindProjectNotFound     Kind = "ProjectNotFound"
	KindAssetNotFound       Kind = "AssetNotFound"
)

// 哨兵错误，配合 errors.Is 按 Kind 匹配。
var (
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrIndexNotFound       = &Error{Kind: KindIndexNotFound}
	ErrIndexEmpty          = &Error{Kind: KindIndexEmpty}
	ErrNoRelevantContext   = &Error{Kind: KindNoRelevantContext}
	ErrProviderError       = &Error{Kind: KindProviderError}
	ErrGenerationFailed    = &Error{Kind: KindGenerationFailed}
	ErrRagGenerationFailed = &Error{Kind: KindRagGenerationFailed}
	ErrTemplateNotFound    = &Error{Kind: KindTemplateNotFound}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch}
	ErrProjectNotFound     = &Error{Kind: KindProjectNotFound}
	ErrAssetNotFound       = &Error{Kind: KindAssetNotFound}
)

// Error 是带类别的错误，Op 记录出错的操作，Err 保留上游原始错误。
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 只比较 Kind，使 errors.Is(err, ErrIndexNotFound) 对任何同类错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New 创建一个指定类别的错误。
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 用指定类别包装 err。err 为 nil 时返回 nil。
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidParameter 是 New(KindInvalidParameter, ...) 的简写。
func InvalidParameter(op, format string, args ...interface{}) *Error {
	return New(KindInvalidParameter, op, format, args...)
}

// KindOf 返回错误链上第一个 *Error 的类别，找不到时返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message 返回最贴近上游的诊断信息，用于对外响应。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Err.Error()
		}
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	return err.Error()
}
