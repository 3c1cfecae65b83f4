// Package aggregate groups sales lines into ranked lists, drill-down trees and
// dashboard summaries. All sums use sign-corrected totals.
package aggregate

import (
	"sort"

	"github.com/salesdash/salesdash/internal/sales"
)

// Bucket is one group of a grouped sum.
type Bucket struct {
	Key      string  `json:"name"`
	Amount   float64 `json:"amount"`
	Quantity float64 `json:"quantity"`
	Count    int     `json:"count"`
}

// GroupSum sums amount per key. Buckets keep the order in which keys first appear.
func GroupSum[T any](items []T, key func(T) string, amount func(T) float64) []Bucket {
	return group(items, key, amount, nil)
}

// Top groups items and returns the n largest buckets.
func Top[T any](items []T, key func(T) string, amount func(T) float64, n int) []Bucket {
	return TopN(GroupSum(items, key, amount), n)
}

// GroupLines groups sales lines by key, summing totals and quantities.
func GroupLines(lines []sales.SalesLine, key func(sales.SalesLine) string) []Bucket {
	return group(lines, key, LineTotal, LineQuantity)
}

// LineTotal is the signed sales amount of a line.
func LineTotal(l sales.SalesLine) float64 { return l.Total }

// LineQuantity is the invoiced quantity of a line.
func LineQuantity(l sales.SalesLine) float64 { return l.Quantity }

func group[T any](items []T, key func(T) string, amount, quantity func(T) float64) []Bucket {
	index := make(map[string]int)
	out := make([]Bucket, 0)
	for _, item := range items {
		k := key(item)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Bucket{Key: k})
		}
		out[i].Amount += amount(item)
		if quantity != nil {
			out[i].Quantity += quantity(item)
		}
		out[i].Count++
	}
	return out
}

// TopN returns up to n buckets by descending amount. Ties keep their input order.
// n <= 0 returns all buckets sorted.
func TopN(buckets []Bucket, n int) []Bucket {
	sorted := make([]Bucket, len(buckets))
	copy(sorted, buckets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// AsMap indexes buckets by key.
func AsMap(buckets []Bucket) map[string]float64 {
	out := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		out[b.Key] = b.Amount
	}
	return out
}

// Sum totals amount over items.
func Sum[T any](items []T, amount func(T) float64) float64 {
	var total float64
	for _, item := range items {
		total += amount(item)
	}
	return total
}
