// Package export serialises already-aggregated rows into CSV and XLSX files
// with fixed column mappings.
package export

import (
	"fmt"
	"time"

	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
)

// Column maps one source field to a display header.
type Column[T any] struct {
	Header string
	Value  func(T) any
	// Currency marks monetary columns, rendered with the currency format.
	Currency bool
}

// SalesColumns is the column mapping of the sales exports.
var SalesColumns = []Column[sales.SalesLine]{
	{Header: "Fecha", Value: func(l sales.SalesLine) any { return l.InvoiceDate }},
	{Header: "Mes", Value: func(l sales.SalesLine) any { return l.Month }},
	{Header: "Comprobante", Value: func(l sales.SalesLine) any { return l.MoveName }},
	{Header: "Tipo", Value: func(l sales.SalesLine) any { return l.MoveType }},
	{Header: "Pedido", Value: func(l sales.SalesLine) any { return l.OrderName }},
	{Header: "Cliente", Value: func(l sales.SalesLine) any { return l.ClientName }},
	{Header: "RUC", Value: func(l sales.SalesLine) any { return l.ClientVAT }},
	{Header: "País", Value: func(l sales.SalesLine) any { return l.ClientCountry }},
	{Header: "Código", Value: func(l sales.SalesLine) any { return l.ProductCode }},
	{Header: "Producto", Value: func(l sales.SalesLine) any { return l.ProductName }},
	{Header: "Línea Comercial", Value: func(l sales.SalesLine) any { return l.CommercialLine.Name }},
	{Header: "Categoría", Value: func(l sales.SalesLine) any { return l.Category.Name }},
	{Header: "Clasificación Farmacológica", Value: func(l sales.SalesLine) any { return l.PharmacologicalClass.Name }},
	{Header: "Forma Farmacéutica", Value: func(l sales.SalesLine) any { return l.PharmaceuticalForm.Name }},
	{Header: "Vía de Administración", Value: func(l sales.SalesLine) any { return l.AdministrationRoute.Name }},
	{Header: "Línea de Producción", Value: func(l sales.SalesLine) any { return l.ProductionLine.Name }},
	{Header: "Ciclo de Vida", Value: func(l sales.SalesLine) any { return l.LifeCycle }},
	{Header: "Canal", Value: func(l sales.SalesLine) any { return l.Channel.Name }},
	{Header: "Vendedor", Value: func(l sales.SalesLine) any { return l.Salesperson.Name }},
	{Header: "Cantidad", Value: func(l sales.SalesLine) any { return l.Quantity }},
	{Header: "Precio Unitario", Value: func(l sales.SalesLine) any { return l.UnitPrice }, Currency: true},
	{Header: "Total", Value: func(l sales.SalesLine) any { return l.Total }, Currency: true},
	{Header: "Impuestos", Value: func(l sales.SalesLine) any { return l.Taxes }},
}

// PendingColumns is the column mapping of the pending order export.
var PendingColumns = []Column[pending.PendingLine]{
	{Header: "Fecha Pedido", Value: func(l pending.PendingLine) any { return l.OrderDate }},
	{Header: "Mes", Value: func(l pending.PendingLine) any { return l.Month }},
	{Header: "Pedido", Value: func(l pending.PendingLine) any { return l.OrderName }},
	{Header: "Estado", Value: func(l pending.PendingLine) any { return l.OrderState }},
	{Header: "Cliente", Value: func(l pending.PendingLine) any { return l.ClientName }},
	{Header: "País", Value: func(l pending.PendingLine) any { return l.ClientCountry }},
	{Header: "Código", Value: func(l pending.PendingLine) any { return l.ProductCode }},
	{Header: "Producto", Value: func(l pending.PendingLine) any { return l.ProductName }},
	{Header: "Línea Comercial", Value: func(l pending.PendingLine) any { return l.CommercialLine.Name }},
	{Header: "Vendedor", Value: func(l pending.PendingLine) any { return l.Salesperson.Name }},
	{Header: "Cant. Pedida", Value: func(l pending.PendingLine) any { return l.OrderedQuantity }},
	{Header: "Cant. Facturada", Value: func(l pending.PendingLine) any { return l.InvoicedQuantity }},
	{Header: "Cant. Pendiente", Value: func(l pending.PendingLine) any { return l.PendingQuantity }},
	{Header: "Precio Unitario", Value: func(l pending.PendingLine) any { return l.UnitPrice }, Currency: true},
	{Header: "Descuento %", Value: func(l pending.PendingLine) any { return l.Discount }},
	{Header: "Total Pendiente", Value: func(l pending.PendingLine) any { return l.TotalPending }, Currency: true},
}

// Sheet names and file names of the exports.
const (
	SalesSheet   = "Ventas"
	PendingSheet = "Pendientes"
)

// DetailsSheet names the sheet of a month detail export.
func DetailsSheet(month string) string { return "Detalle Ventas " + month }

// SalesFilename names a sales export generated at now.
func SalesFilename(now time.Time, ext string) string {
	return fmt.Sprintf("ventas_farmaceuticas_%s.%s", now.Format("20060102_150405"), ext)
}

// PendingFilename names a pending export generated at now.
func PendingFilename(now time.Time) string {
	return fmt.Sprintf("pedidos_pendientes_%s.xlsx", now.Format("20060102_150405"))
}

// DetailsFilename names a month detail export.
func DetailsFilename(month string) string {
	return fmt.Sprintf("detalle_ventas_%s.xlsx", month)
}
