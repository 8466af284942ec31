package domain

// StockAdjustment — результат изменения остатка по одной позиции заказа.
type StockAdjustment struct {
	ProductID string
	Delta     int64
	// Stock — остаток после изменения; заполнен только при успехе.
	Stock int64
	Err   error
}

// OK сообщает, что изменение применено.
func (a StockAdjustment) OK() bool {
	return a.Err == nil
}

// StockReport собирает результаты по всем позициям.
type StockReport struct {
	Direction   StockDirection
	Adjustments []StockAdjustment
}

// Failed возвращает позиции, которые не удалось скорректировать.
func (r StockReport) Failed() []StockAdjustment {
	var failed []StockAdjustment
	for _, adj := range r.Adjustments {
		if !adj.OK() {
			failed = append(failed, adj)
		}
	}
	return failed
}

// Complete сообщает, что все позиции скорректированы.
func (r StockReport) Complete() bool {
	return len(r.Failed()) == 0
}
