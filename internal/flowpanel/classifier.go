package flowpanel

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	RouteQuickAnalysis = "quick_analysis"
	RouteModeling      = "modeling"
)

// Classifier 按用户消息选择处理路线。
type Classifier interface {
	Classify(message string) string
}

// Rule 关键词规则: 消息包含任一关键词即命中该路线。
type Rule struct {
	Route    string   `yaml:"route"`
	Keywords []string `yaml:"keywords"`
}

// RulesFile 规则文件结构。
//
//	fallback: quick_analysis
//	rules:
//	  - route: modeling
//	    keywords: [建模, 预测, train]
//	routes:
//	  modeling: [理解问题, 数据预处理, 模型训练, 模型评估]
type RulesFile struct {
	Fallback string              `yaml:"fallback"`
	Rules    []Rule              `yaml:"rules"`
	Routes   map[string][]string `yaml:"routes"`
}

// KeywordClassifier 按规则顺序匹配关键词 (大小写不敏感), 均未命中时返回 Fallback。
type KeywordClassifier struct {
	Rules    []Rule
	Fallback string
}

// DefaultClassifier 内置规则: 建模相关词汇走 modeling, 其余走 quick_analysis。
func DefaultClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Rules: []Rule{{
			Route: RouteModeling,
			Keywords: []string{
				"建模", "模型", "预测", "训练", "回归", "分类", "聚类",
				"model", "predict", "forecast", "train", "regression", "classif", "cluster",
			},
		}},
		Fallback: RouteQuickAnalysis,
	}
}

// Classify 实现 Classifier。
func (k *KeywordClassifier) Classify(message string) string {
	text := strings.ToLower(message)
	for _, r := range k.Rules {
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				return r.Route
			}
		}
	}
	if k.Fallback != "" {
		return k.Fallback
	}
	return RouteQuickAnalysis
}

// LoadRules 读取 YAML 规则文件。
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules 解析 YAML 规则。
func ParseRules(data []byte) (*RulesFile, error) {
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse flow rules: %w", err)
	}
	for i, r := range rf.Rules {
		if strings.TrimSpace(r.Route) == "" {
			return nil, fmt.Errorf("parse flow rules: rule %d has empty route", i)
		}
	}
	for id, steps := range rf.Routes {
		if len(steps) == 0 {
			return nil, fmt.Errorf("parse flow rules: route %q has no steps", id)
		}
	}
	return &rf, nil
}

// Classifier 由规则文件构造分类器。
func (rf *RulesFile) Classifier() *KeywordClassifier {
	return &KeywordClassifier{Rules: rf.Rules, Fallback: rf.Fallback}
}
