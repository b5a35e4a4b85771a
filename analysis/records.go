// Package analysis holds the engine's analysis objects (statistics, data
// sets, histograms) and unit-bearing numbers as plain Go records. Field
// layout mirrors what the engine reports so values are never flattened.
package analysis

import (
	"math"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/simlink/internal/util"
)

// Statistics holds the fields shared by discrete and continuous statistics.
type Statistics struct {
	Count      int64   `json:"count"`
	Mean       float64 `json:"mean"`
	Confidence float64 `json:"confidence"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Deviation  float64 `json:"deviation"`
}

// StatisticsDiscrete summarises a series of discrete samples.
type StatisticsDiscrete struct {
	Statistics
	Sum float64 `json:"sum"`
}

// StatisticsContinuous summarises a time-persistent value.
type StatisticsContinuous struct {
	Statistics
	Integral float64 `json:"integral"`
}

// DataSet is a table of (x, y) points plus its summary.
type DataSet struct {
	XMin    float64     `json:"xmin"`
	XMean   float64     `json:"xmean"`
	XMedian float64     `json:"xmedian"`
	XMax    float64     `json:"xmax"`
	YMin    float64     `json:"ymin"`
	YMean   float64     `json:"ymean"`
	YMedian float64     `json:"ymedian"`
	YMax    float64     `json:"ymax"`
	Points  [][]float64 `json:"plainDataTable"`
}

// XValues returns the first column of the data table.
func (d DataSet) XValues() []float64 { return column(d.Points, 0) }

// YValues returns the second column of the data table.
func (d DataSet) YValues() []float64 { return column(d.Points, 1) }

func column(rows [][]float64, i int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) > i {
			out = append(out, row[i])
		}
	}
	return out
}

// HistogramSmartData is a histogram with automatically adjusted bins.
type HistogramSmartData struct {
	Count         int64      `json:"count"`
	LowerBound    float64    `json:"lowerBound"`
	IntervalWidth float64    `json:"intervalWidth"`
	Hits          []int64    `json:"hits"`
	Statistics    Statistics `json:"statistics"`
}

// Bins rebuilds a sample set and bin edges that plot the same as the
// histogram. The samples are visually but not statistically equivalent.
func (h HistogramSmartData) Bins() (samples []float64, edges []float64) {
	for i, n := range h.Hits {
		x := h.LowerBound + h.IntervalWidth*float64(i)
		for j := int64(0); j < n; j++ {
			samples = append(samples, x)
		}
		edges = append(edges, x)
	}
	edges = append(edges, h.LowerBound+h.IntervalWidth*float64(len(h.Hits)))
	return samples, edges
}

// HistogramSimpleData is a histogram with fixed bins and out-of-range counters.
type HistogramSimpleData struct {
	HistogramSmartData
	HitsOutLow  float64 `json:"hitsOutLow"`
	HitsOutHigh float64 `json:"hitsOutHigh"`
}

// Histogram2DData is a two dimensional histogram.
type Histogram2DData struct {
	Hits        [][]int64 `json:"hits"`
	HitsOutLow  []int64   `json:"hitsOutLow"`
	HitsOutHigh []int64   `json:"hitsOutHigh"`
	XMin        float64   `json:"xMin"`
	XMax        float64   `json:"xMax"`
	YMin        float64   `json:"yMin"`
	YMax        float64   `json:"yMax"`
}

// Number reads a numeric JSON value, accepting the engine's string
// encodings of infinities and NaN. Missing values yield def.
func Number(r gjson.Result, def float64) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		if f, err := util.ParseNumber(r.Str); err == nil {
			return f
		}
	}
	return def
}

func ints(r gjson.Result) []int64 {
	arr := r.Array()
	out := make([]int64, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.Int())
	}
	return out
}

func decodeStatistics(r gjson.Result) Statistics {
	return Statistics{
		Count:      r.Get("count").Int(),
		Mean:       Number(r.Get("mean"), 0),
		Confidence: Number(r.Get("confidence"), math.Inf(1)),
		Min:        Number(r.Get("min"), math.Inf(1)),
		Max:        Number(r.Get("max"), math.Inf(-1)),
		Deviation:  Number(r.Get("deviation"), 0),
	}
}

// UnmarshalJSON decodes the engine representation.
func (s *StatisticsDiscrete) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	*s = DecodeStatisticsDiscrete(r)
	return nil
}

// DecodeStatisticsDiscrete builds a StatisticsDiscrete from engine JSON.
func DecodeStatisticsDiscrete(r gjson.Result) StatisticsDiscrete {
	return StatisticsDiscrete{Statistics: decodeStatistics(r), Sum: Number(r.Get("sum"), 0)}
}

// UnmarshalJSON decodes the engine representation.
func (s *StatisticsContinuous) UnmarshalJSON(b []byte) error {
	*s = DecodeStatisticsContinuous(gjson.ParseBytes(b))
	return nil
}

// DecodeStatisticsContinuous builds a StatisticsContinuous from engine JSON.
func DecodeStatisticsContinuous(r gjson.Result) StatisticsContinuous {
	return StatisticsContinuous{Statistics: decodeStatistics(r), Integral: Number(r.Get("integral"), 0)}
}

// UnmarshalJSON decodes the engine representation.
func (d *DataSet) UnmarshalJSON(b []byte) error {
	*d = DecodeDataSet(gjson.ParseBytes(b))
	return nil
}

// DecodeDataSet builds a DataSet from engine JSON.
func DecodeDataSet(r gjson.Result) DataSet {
	d := DataSet{
		XMin:    Number(r.Get("xmin"), math.Inf(1)),
		XMean:   Number(r.Get("xmean"), 0),
		XMedian: Number(r.Get("xmedian"), 0),
		XMax:    Number(r.Get("xmax"), math.Inf(-1)),
		YMin:    Number(r.Get("ymin"), math.Inf(1)),
		YMean:   Number(r.Get("ymean"), 0),
		YMedian: Number(r.Get("ymedian"), 0),
		YMax:    Number(r.Get("ymax"), math.Inf(-1)),
	}
	for _, row := range r.Get("plainDataTable").Array() {
		cells := row.Array()
		point := make([]float64, 0, len(cells))
		for _, c := range cells {
			point = append(point, Number(c, 0))
		}
		d.Points = append(d.Points, point)
	}
	return d
}

// UnmarshalJSON decodes the engine representation.
func (h *HistogramSmartData) UnmarshalJSON(b []byte) error {
	*h = DecodeHistogramSmartData(gjson.ParseBytes(b))
	return nil
}

// DecodeHistogramSmartData builds a HistogramSmartData from engine JSON.
func DecodeHistogramSmartData(r gjson.Result) HistogramSmartData {
	return HistogramSmartData{
		Count:         r.Get("count").Int(),
		LowerBound:    Number(r.Get("lowerBound"), 0),
		IntervalWidth: Number(r.Get("intervalWidth"), 0.1),
		Hits:          ints(r.Get("hits")),
		Statistics:    decodeStatistics(r.Get("statistics")),
	}
}

// UnmarshalJSON decodes the engine representation.
func (h *HistogramSimpleData) UnmarshalJSON(b []byte) error {
	*h = DecodeHistogramSimpleData(gjson.ParseBytes(b))
	return nil
}

// DecodeHistogramSimpleData builds a HistogramSimpleData from engine JSON.
func DecodeHistogramSimpleData(r gjson.Result) HistogramSimpleData {
	return HistogramSimpleData{
		HistogramSmartData: DecodeHistogramSmartData(r),
		HitsOutLow:         Number(r.Get("hitsOutLow"), 0),
		HitsOutHigh:        Number(r.Get("hitsOutHigh"), 0),
	}
}

// UnmarshalJSON decodes the engine representation.
func (h *Histogram2DData) UnmarshalJSON(b []byte) error {
	*h = DecodeHistogram2DData(gjson.ParseBytes(b))
	return nil
}

// DecodeHistogram2DData builds a Histogram2DData from engine JSON.
func DecodeHistogram2DData(r gjson.Result) Histogram2DData {
	h := Histogram2DData{
		HitsOutLow:  ints(r.Get("hitsOutLow")),
		HitsOutHigh: ints(r.Get("hitsOutHigh")),
		XMin:        Number(r.Get("xMin"), math.Inf(1)),
		XMax:        Number(r.Get("xMax"), math.Inf(-1)),
		YMin:        Number(r.Get("yMin"), math.Inf(1)),
		YMax:        Number(r.Get("yMax"), math.Inf(-1)),
	}
	for _, row := range r.Get("hits").Array() {
		h.Hits = append(h.Hits, ints(row))
	}
	return h
}
