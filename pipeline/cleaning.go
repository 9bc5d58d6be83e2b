// Package pipeline 训练数据清洗
package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"seedcar/ml"
)

// Row 一条待清洗的训练样本，Line为CSV中的行号（表头为第1行）
type Row struct {
	Line      int
	Fields    ml.Fields
	corrected bool
}

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(Row) (Row, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, high
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
}

type resetter interface {
	Reset()
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules  []CleaningRule
	stats  CleaningStats
	logger *zap.Logger
}

// NewDataCleaner 按模型类型创建带默认规则的清洗器。column为标签列（wheat）或价格列（car）
func NewDataCleaner(kind ml.Kind, column string, logger *zap.Logger) (*DataCleaner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		stats:  CleaningStats{Issues: make(map[string]int64)},
		logger: logger,
	}

	switch kind {
	case ml.KindWheat:
		cleaner.AddRule(NewFeatureRule(ml.BuildWheatFeatures))
		cleaner.AddRule(NewLabelRule(column))
	case ml.KindCar:
		cleaner.AddRule(NewFeatureRule(ml.BuildCarFeatures))
		cleaner.AddRule(NewTargetRule(column))
	default:
		return nil, fmt.Errorf("%w: %s", ml.ErrUnsupportedKind, kind)
	}
	cleaner.AddRule(NewDuplicateDetectionRule())
	return cleaner, nil
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean 清洗数据集，返回通过的行组成的新数据集和发现的问题。原数据集不会被修改
func (dc *DataCleaner) Clean(ds *ml.Dataset) (*ml.Dataset, []QualityIssue) {
	for _, rule := range dc.rules {
		if r, ok := rule.(resetter); ok {
			r.Reset()
		}
	}

	cleaned := &ml.Dataset{Header: ds.Header}
	var issues []QualityIssue

	for i, fields := range ds.Rows {
		dc.stats.TotalProcessed++

		row := Row{Line: i + 2, Fields: cloneFields(fields)}
		var rowIssue *QualityIssue

		// 按顺序应用规则，第一条失败的规则即拒绝该行
		for _, rule := range dc.rules {
			next, err := rule.Apply(row)
			if err != nil {
				rowIssue = &QualityIssue{
					Type:     rule.Name(),
					Severity: "high",
					Message:  err.Error(),
					Line:     row.Line,
				}
				dc.stats.Issues[rule.Name()]++
				break
			}
			row = next
		}

		if rowIssue != nil {
			dc.stats.Rejected++
			issues = append(issues, *rowIssue)
			continue
		}
		if row.corrected {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned.Rows = append(cleaned.Rows, row.Fields)
	}

	dc.logger.Info("training data cleaned",
		zap.Int64("processed", dc.stats.TotalProcessed),
		zap.Int64("passed", dc.stats.Passed),
		zap.Int64("rejected", dc.stats.Rejected),
		zap.Int64("corrected", dc.stats.Corrected))
	return cleaned, issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

func cloneFields(fields ml.Fields) ml.Fields {
	out := make(ml.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// ============ 清洗规则实现 ============

// FeatureRule 行必须能通过请求使用的同一个特征构建器
type FeatureRule struct {
	build func(ml.Fields) (ml.FeatureVector, error)
}

func NewFeatureRule(build func(ml.Fields) (ml.FeatureVector, error)) *FeatureRule {
	return &FeatureRule{build: build}
}

func (r *FeatureRule) Name() string {
	return "feature_validation"
}

func (r *FeatureRule) Apply(row Row) (Row, error) {
	if _, err := r.build(row.Fields); err != nil {
		return row, err
	}
	return row, nil
}

// LabelRule 小麦类别必须是已知品种，"2.0"这类写法会被修正为"2"
type LabelRule struct {
	Column string
}

func NewLabelRule(column string) *LabelRule {
	return &LabelRule{Column: column}
}

func (r *LabelRule) Name() string {
	return "label_validation"
}

func (r *LabelRule) Apply(row Row) (Row, error) {
	raw := row.Fields.String(r.Column)
	if raw == "" {
		return row, fmt.Errorf("label column %q is empty", r.Column)
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || v != math.Trunc(v) {
		return row, fmt.Errorf("label %q is not a class number", raw)
	}
	label := int(v)
	if _, ok := ml.WheatVarieties[label]; !ok {
		return row, fmt.Errorf("label %d is not a known variety", label)
	}
	if canonical := strconv.Itoa(label); canonical != raw {
		setField(row.Fields, r.Column, canonical)
		row.corrected = true
	}
	return row, nil
}

// TargetRule 价格必须为正的有限数
type TargetRule struct {
	Column string
}

func NewTargetRule(column string) *TargetRule {
	return &TargetRule{Column: column}
}

func (r *TargetRule) Name() string {
	return "target_validation"
}

func (r *TargetRule) Apply(row Row) (Row, error) {
	raw := row.Fields.String(r.Column)
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return row, fmt.Errorf("target %q is not a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return row, fmt.Errorf("target %v must be a positive price", v)
	}
	return row, nil
}

// DuplicateDetectionRule 重复检测规则，键名不区分大小写
type DuplicateDetectionRule struct {
	seenMap map[string]int
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{
		seenMap: make(map[string]int),
	}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Reset() {
	r.seenMap = make(map[string]int)
}

func (r *DuplicateDetectionRule) Apply(row Row) (Row, error) {
	key := rowKey(row.Fields)
	if line, ok := r.seenMap[key]; ok {
		return row, fmt.Errorf("duplicate of line %d", line)
	}
	r.seenMap[key] = row.Line
	return row, nil
}

func rowKey(fields ml.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToLower(k))
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(cast.ToString(fields[k])))
		b.WriteByte(';')
	}
	return b.String()
}

// setField 覆盖与name匹配的已有键，保持原始列名
func setField(fields ml.Fields, name, value string) {
	want := strings.ToLower(name)
	for k := range fields {
		if strings.ToLower(k) == want {
			fields[k] = value
			return
		}
	}
	fields[name] = value
}
