package main

import (
	"sort"

	"github.com/shopspring/decimal"
)

// sumLines calcula o total derivado: Σ(quantity × unit price) das linhas atuais.
// Sem linhas o total é zero.
func sumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// sumOrderTotals soma o total derivado de cada pedido
func sumOrderTotals(orders map[string]Order) decimal.Decimal {
	revenue := decimal.Zero
	for _, o := range orders {
		revenue = revenue.Add(o.TotalAmount)
	}
	return revenue
}

// recomputeOrderTotalSQL recalcula e grava o total dentro da mesma transação que
// alterou as linhas. Toda escrita de linha do PostgresOrderRepository termina com ele.
const recomputeOrderTotalSQL = `
	UPDATE orders
	SET total_amount = (
		SELECT COALESCE(SUM(quantity * unit_price), 0)
		FROM order_lines
		WHERE order_id = $1
	),
	    updated_at = NOW()
	WHERE id = $1
	RETURNING total_amount
`

// stockRelease é a quantidade a devolver para um produto
type stockRelease struct {
	ProductID string
	Quantity  int
}

// releasePlan agrupa as quantidades por produto em ordem de id, a mesma ordem
// usada para travar produtos na criação de pedidos.
func releasePlan(lines []OrderLine) []stockRelease {
	byProduct := make(map[string]int)
	for _, line := range lines {
		byProduct[line.ProductID] += line.Quantity
	}

	plan := make([]stockRelease, 0, len(byProduct))
	for productID, quantity := range byProduct {
		plan = append(plan, stockRelease{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].ProductID < plan[j].ProductID })
	return plan
}
