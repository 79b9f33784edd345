// Package templates 提供按 (locale, 模板名) 索引的提示词模板。
// 模板在启动时加载一次，之后只读。
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"lite-rag-go/pkg/errs"

	"gopkg.in/yaml.v3"
)

// 内置的模板名。
const (
	NameRAG          = "rag"
	NameContextEntry = "rag_context_entry"
)

// Fragment 是模板中带角色的一段文本。
type Fragment struct {
	Name    string `yaml:"name"`
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// Template 是有序的片段序列。
type Template struct {
	Locale    string
	Name      string
	Fragments []Fragment
}

// Message 是渲染后的一条角色消息。
type Message struct {
	Role    string
	Content string
}

type key struct {
	locale string
	name   string
}

// Resolver 是 (locale, name) 到模板的扁平只读映射。
type Resolver struct {
	table map[key]Template
}

//go:embed locales.yaml
var builtin []byte

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load 加载内置模板；overridePath 非空时，用该 YAML 文件中的模板覆盖或补充同名模板。
func Load(overridePath string) (*Resolver, error) {
	r := &Resolver{table: make(map[key]Template)}
	if err := r.merge(builtin); err != nil {
		return nil, fmt.Errorf("解析内置模板失败: %w", err)
	}
	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("读取模板文件失败: %w", err)
		}
		if err := r.merge(data); err != nil {
			return nil, fmt.Errorf("解析模板文件 %s 失败: %w", overridePath, err)
		}
	}
	return r, nil
}

// MustLoadBuiltin 加载内置模板，失败时 panic。
func MustLoadBuiltin() *Resolver {
	r, err := Load("")
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Resolver) merge(data []byte) error {
	var tree map[string]map[string][]Fragment
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	for locale, byName := range tree {
		for name, fragments := range byName {
			for _, f := range fragments {
				switch f.Role {
				case "system", "user", "assistant":
				default:
					return fmt.Errorf("模板 %s/%s 的片段 %q 角色非法: %q", locale, name, f.Name, f.Role)
				}
			}
			r.table[key{locale, name}] = Template{Locale: locale, Name: name, Fragments: fragments}
		}
	}
	return nil
}

// Resolve 返回指定 locale 下的模板。不会回退到其他 locale。
func (r *Resolver) Resolve(locale, name string) (Template, error) {
	t, ok := r.table[key{locale, name}]
	if !ok {
		return Template{}, errs.New(errs.KindTemplateNotFound, "templates.Resolve", "模板不存在: locale=%q name=%q", locale, name)
	}
	return t, nil
}

// Locales 返回已加载的 locale 列表（已排序）。
func (r *Resolver) Locales() []string {
	seen := make(map[string]struct{})
	for k := range r.table {
		seen[k.locale] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Render 替换模板中所有的 {name} 占位符。替换是单遍的，变量值中的花括号不会被再次解析。
// 任一占位符没有对应变量时返回 TemplateNotFound。
func Render(t Template, vars map[string]string) ([]Message, error) {
	msgs := make([]Message, 0, len(t.Fragments))
	for _, f := range t.Fragments {
		var missing string
		content := placeholder.ReplaceAllStringFunc(f.Content, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := vars[name]
			if !ok {
				if missing == "" {
					missing = name
				}
				return m
			}
			return v
		})
		if missing != "" {
			return nil, errs.New(errs.KindTemplateNotFound, "templates.Render",
				"模板 %s/%s 的片段 %q 中占位符 {%s} 未提供", t.Locale, t.Name, f.Name, missing)
		}
		msgs = append(msgs, Message{Role: f.Role, Content: content})
	}
	return msgs, nil
}

// RenderText 渲染模板并把所有片段内容按顺序拼接为一个字符串。
func RenderText(t Template, vars map[string]string) (string, error) {
	msgs, err := Render(t, vars)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
	}
	return sb.String(), nil
}
