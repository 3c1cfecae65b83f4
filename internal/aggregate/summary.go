package aggregate

import (
	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/sales"
)

const (
	topClients  = 10
	topProducts = 10
	topSellers  = 8
	noLeader    = "N/A"
)

// LeaderStats describes the size of a ranking and its leader.
type LeaderStats struct {
	Total     int     `json:"total"`
	TopName   string  `json:"top_name"`
	TopAmount float64 `json:"top_amount"`
}

// Summary holds the KPIs and rankings of the channel dashboard.
type Summary struct {
	TotalSales    float64 `json:"total_sales"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalLines    int     `json:"total_lines"`
	AvgSale       float64 `json:"avg_sale"`

	TopClients          []Bucket    `json:"top_clients"`
	TopProducts         []Bucket    `json:"top_products"`
	SalesByChannel      []Bucket    `json:"sales_by_channel"`
	CommercialLines     []Bucket    `json:"commercial_lines"`
	CommercialLineStats LeaderStats `json:"commercial_lines_stats"`
	Sellers             []Bucket    `json:"sellers"`
	SellerStats         LeaderStats `json:"sellers_stats"`
}

// Summarize computes the dashboard summary of lines.
func Summarize(lines []sales.SalesLine) Summary {
	s := Summary{
		TotalSales:    Sum(lines, LineTotal),
		TotalQuantity: Sum(lines, LineQuantity),
		TotalLines:    len(lines),
	}
	if s.TotalLines > 0 {
		s.AvgSale = s.TotalSales / float64(s.TotalLines)
	}
	s.TopClients = TopN(GroupLines(lines, classify.ClientName), topClients)
	s.TopProducts = TopN(GroupLines(lines, classify.ProductName), topProducts)
	s.SalesByChannel = GroupLines(lines, classify.ChannelName)

	s.CommercialLines = TopN(GroupLines(lines, func(l sales.SalesLine) string {
		return classify.CategoryBreakdown(l).CommercialLine
	}), 0)
	s.CommercialLineStats = leader(s.CommercialLines, len(s.CommercialLines))

	sellers := GroupLines(lines, classify.SellerName)
	s.Sellers = TopN(sellers, topSellers)
	s.SellerStats = leader(s.Sellers, len(sellers))
	return s
}

func leader(ranked []Bucket, total int) LeaderStats {
	if len(ranked) == 0 {
		return LeaderStats{TopName: noLeader}
	}
	return LeaderStats{Total: total, TopName: ranked[0].Key, TopAmount: ranked[0].Amount}
}

// ============================================================================
// STACKED CHART
// ============================================================================

// StackedSeries is one stacked bar series.
type StackedSeries struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Stack string      `json:"stack"`
	Label SeriesLabel `json:"label"`
	Data  []float64   `json:"data"`
}

// SeriesLabel toggles the value labels of a series.
type SeriesLabel struct {
	Show bool `json:"show"`
}

// StackedChart counts quantity per commercial line for each category axis that
// is set on the product.
type StackedChart struct {
	YAxis  []string        `json:"yAxis"`
	Series []StackedSeries `json:"series"`
	Legend []string        `json:"legend"`
}

type stackAxis struct {
	name  string
	value func(sales.SalesLine) ledger.Relation
}

var stackAxes = []stackAxis{
	{"Forma Farmacéutica", func(l sales.SalesLine) ledger.Relation { return l.PharmaceuticalForm }},
	{"Clasificación Farmacológica", func(l sales.SalesLine) ledger.Relation { return l.PharmacologicalClass }},
	{"Vía de Administración", func(l sales.SalesLine) ledger.Relation { return l.AdministrationRoute }},
	{"Categoría de Producto", func(l sales.SalesLine) ledger.Relation { return l.Category }},
	{"Línea de Producción", func(l sales.SalesLine) ledger.Relation { return l.ProductionLine }},
}

// Stacked builds the stacked chart of lines.
func Stacked(lines []sales.SalesLine) StackedChart {
	chart := StackedChart{YAxis: []string{}, Series: make([]StackedSeries, len(stackAxes)), Legend: make([]string, len(stackAxes))}
	index := make(map[string]int)
	sums := make([][]float64, 0)
	for _, l := range lines {
		name := classify.CategoryBreakdown(l).CommercialLine
		row, ok := index[name]
		if !ok {
			row = len(chart.YAxis)
			index[name] = row
			chart.YAxis = append(chart.YAxis, name)
			sums = append(sums, make([]float64, len(stackAxes)))
		}
		for i, axis := range stackAxes {
			if axis.value(l).Valid() {
				sums[row][i] += l.Quantity
			}
		}
	}
	for i, axis := range stackAxes {
		data := make([]float64, len(chart.YAxis))
		for row := range chart.YAxis {
			data[row] = sums[row][i]
		}
		chart.Series[i] = StackedSeries{Name: axis.name, Type: "bar", Stack: "total", Label: SeriesLabel{Show: true}, Data: data}
		chart.Legend[i] = axis.name
	}
	return chart
}
