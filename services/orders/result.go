package main

// Result é o retorno de toda operação do motor: sucesso, mensagem para o usuário
// e, quando houver, o pedido resultante. Err é nil em caso de sucesso.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
	Err     error  `json:"-"`
}

// StatisticsResult é o retorno de GetStatistics, no mesmo formato de Result
type StatisticsResult struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Statistics *OrderStatistics `json:"statistics,omitempty"`
	Err        error            `json:"-"`
}

func succeeded(message string, order *Order) Result {
	return Result{Success: true, Message: message, Order: order}
}

func failed(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}
