package analysis

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RecentPeriod is how many trailing values are reported alongside the latest
// indicator values.
const RecentPeriod = 5

// MinTechnicalBars is the amount of history the technical indicators need to
// produce every value, including SMA100.
const MinTechnicalBars = 100

// Series is a daily OHLCV series in chronological order.
type Series struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.Close)
}

func (s Series) validate() error {
	n := len(s.Close)
	if n == 0 {
		return ErrInsufficientData
	}
	if len(s.Dates) != n || len(s.Open) != n || len(s.High) != n || len(s.Low) != n || len(s.Volume) != n {
		return fmt.Errorf("%w: series columns have different lengths", ErrInvalidInput)
	}
	return nil
}

// MACDValues is the latest MACD reading.
type MACDValues struct {
	MACD      *float64 `json:"MACD"`
	Signal    *float64 `json:"Signal"`
	Histogram *float64 `json:"Histogram"`
}

// BandValues is the latest Bollinger reading.
type BandValues struct {
	Upper  *float64 `json:"Upper"`
	Middle *float64 `json:"Middle"`
	Lower  *float64 `json:"Lower"`
}

// KDJValues is the latest stochastic reading with J = 3K - 2D.
type KDJValues struct {
	K *float64 `json:"K"`
	D *float64 `json:"D"`
	J *float64 `json:"J"`
}

// VolumeValues compares the latest volume with its 20-day average.
type VolumeValues struct {
	Current     int64    `json:"current_volume"`
	Avg20       float64  `json:"avg_volume_20"`
	VolumeRatio *float64 `json:"volume_ratio"`
}

// TrendValues are simple moving-average trend checks.
type TrendValues struct {
	PriceAboveSMA20 *bool `json:"price_above_sma20"`
	PriceAboveSMA50 *bool `json:"price_above_sma50"`
	SMA20AboveSMA50 *bool `json:"sma20_above_sma50"`
}

// LatestIndicators holds the most recent value of every indicator.
type LatestIndicators struct {
	MovingAverages map[string]*float64 `json:"moving_averages"`
	RSI            *float64            `json:"RSI"`
	MACD           MACDValues          `json:"MACD"`
	Bollinger      BandValues          `json:"Bollinger_Bands"`
	KDJ            KDJValues           `json:"KDJ"`
	WilliamsR      *float64            `json:"Williams_R"`
	CCI            *float64            `json:"CCI"`
	Volume         VolumeValues        `json:"volume"`
	Trend          TrendValues         `json:"trend_analysis"`
}

// RecentIndicators holds the trailing values of each indicator.
type RecentIndicators struct {
	Date       []string  `json:"date"`
	SMA5       []float64 `json:"sma5"`
	SMA10      []float64 `json:"sma10"`
	SMA20      []float64 `json:"sma20"`
	SMA50      []float64 `json:"sma50"`
	SMA100     []float64 `json:"sma100"`
	RSI        []float64 `json:"rsi"`
	MACD       []float64 `json:"macd"`
	MACDSignal []float64 `json:"macd_signal"`
	BBUpper    []float64 `json:"bb_upper"`
	BBLower    []float64 `json:"bb_lower"`
	KDJK       []float64 `json:"kdj_k"`
	KDJD       []float64 `json:"kdj_d"`
	WilliamsR  []float64 `json:"williams_r"`
	CCI        []float64 `json:"cci"`
}

// Technicals is the full indicator report for a series.
type Technicals struct {
	CalculationDate string           `json:"calculation_date"`
	DataPeriod      string           `json:"data_period"`
	CurrentPrice    float64          `json:"current_price"`
	Latest          LatestIndicators `json:"latest_indicators"`
	Recent          RecentIndicators `json:"recent_indicators"`
}

// ComputeTechnicals calculates SMA 5/10/20/50/100, RSI 14, MACD 12/26/9,
// Bollinger 20/2, KDJ 5/3/3, Williams %R 14, CCI 14, volume ratio and trend
// checks for s.
func ComputeTechnicals(s Series) (*Technicals, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	n := s.Len()
	c := s.Close
	last := c[n-1]

	sma5, sma10, sma20 := SMA(c, 5), SMA(c, 10), SMA(c, 20)
	sma50, sma100 := SMA(c, 50), SMA(c, 100)
	rsi := RSI(c, 14)
	macd := MACD(c, 12, 26, 9)
	bb := Bollinger(c, 20, 2)
	kd := Stoch(s.High, s.Low, c, 5, 3, 3)
	willr := WilliamsR(s.High, s.Low, c, 14)
	cci := CCI(s.High, s.Low, c, 14)

	t := &Technicals{
		CalculationDate: s.Dates[n-1].Format("2006-01-02"),
		DataPeriod:      fmt.Sprintf("使用了%d天的数据", n),
		CurrentPrice:    last,
	}

	t.Latest = LatestIndicators{
		MovingAverages: map[string]*float64{
			"SMA5":   Last(sma5),
			"SMA10":  Last(sma10),
			"SMA20":  Last(sma20),
			"SMA50":  Last(sma50),
			"SMA100": Last(sma100),
		},
		RSI:       Last(rsi),
		MACD:      MACDValues{MACD: Last(macd.MACD), Signal: Last(macd.Signal), Histogram: Last(macd.Hist)},
		Bollinger: BandValues{Upper: Last(bb.Upper), Middle: Last(bb.Middle), Lower: Last(bb.Lower)},
		WilliamsR: Last(willr),
		CCI:       Last(cci),
	}

	k, d := Last(kd.K), Last(kd.D)
	t.Latest.KDJ = KDJValues{K: k, D: d}
	if k != nil && d != nil {
		t.Latest.KDJ.J = Value(3**k - 2**d)
	}

	window := s.Volume[max(0, n-20):]
	avg := stat.Mean(window, nil)
	t.Latest.Volume = VolumeValues{Current: int64(s.Volume[n-1]), Avg20: avg}
	if avg > 0 {
		t.Latest.Volume.VolumeRatio = Value(s.Volume[n-1] / avg)
	}

	s20, s50 := Last(sma20), Last(sma50)
	if s20 != nil {
		t.Latest.Trend.PriceAboveSMA20 = boolPtr(last > *s20)
	}
	if s50 != nil {
		t.Latest.Trend.PriceAboveSMA50 = boolPtr(last > *s50)
	}
	if s20 != nil && s50 != nil {
		t.Latest.Trend.SMA20AboveSMA50 = boolPtr(*s20 > *s50)
	}

	for _, dt := range s.Dates[max(0, n-RecentPeriod):] {
		t.Recent.Date = append(t.Recent.Date, dt.Format("2006-01-02"))
	}
	t.Recent.SMA5 = Tail(sma5, RecentPeriod)
	t.Recent.SMA10 = Tail(sma10, RecentPeriod)
	t.Recent.SMA20 = Tail(sma20, RecentPeriod)
	t.Recent.SMA50 = Tail(sma50, RecentPeriod)
	t.Recent.SMA100 = Tail(sma100, RecentPeriod)
	t.Recent.RSI = Tail(rsi, RecentPeriod)
	t.Recent.MACD = Tail(macd.MACD, RecentPeriod)
	t.Recent.MACDSignal = Tail(macd.Signal, RecentPeriod)
	t.Recent.BBUpper = Tail(bb.Upper, RecentPeriod)
	t.Recent.BBLower = Tail(bb.Lower, RecentPeriod)
	t.Recent.KDJK = Tail(kd.K, RecentPeriod)
	t.Recent.KDJD = Tail(kd.D, RecentPeriod)
	t.Recent.WilliamsR = Tail(willr, RecentPeriod)
	t.Recent.CCI = Tail(cci, RecentPeriod)

	return t, nil
}

func boolPtr(b bool) *bool {
	return &b
}
