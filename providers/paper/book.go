package paper

import (
	"math"
	"sort"
	"time"

	"gitlab.com/aoterocom/autotrader/models"
)

// Valuer converts a price move over a volume into account currency.
type Valuer func(symbol string, priceDelta, volume float64) float64

// ContractValuer values a move as priceDelta × volume × contractSize.
func ContractValuer(contractSize float64) Valuer {
	return func(_ string, priceDelta, volume float64) float64 {
		return priceDelta * volume * contractSize
	}
}

// Closed is one position (or part of one) closed by an execution.
type Closed struct {
	Position  models.Position
	Volume    float64
	ExitPrice float64
	ExitTime  time.Time
	Profit    float64
}

// Book is a netting position book: at most one position per symbol. An
// opposite execution reduces, closes or reverses it. Not safe for concurrent
// use.
type Book struct {
	positions  map[string]*models.Position
	nextTicket int64
	valuer     Valuer
}

func NewBook(valuer Valuer) *Book {
	if valuer == nil {
		valuer = ContractValuer(1)
	}
	return &Book{positions: make(map[string]*models.Position), valuer: valuer}
}

// Execute applies a fill to the book and returns the positions it closed.
// stopLoss and takeProfit replace the exits of the resulting position.
func (b *Book) Execute(request models.OrderRequest, price float64, at time.Time) []Closed {
	var closed []Closed
	remaining := request.Volume

	if position, ok := b.positions[request.Symbol]; ok {
		if position.Side == request.Side {
			total := position.Volume + remaining
			position.OpenPrice = (position.OpenPrice*position.Volume + price*remaining) / total
			position.Volume = total
			b.setExits(position, request)
			return nil
		}

		volume := math.Min(remaining, position.Volume)
		closed = append(closed, b.reduce(position, volume, price, at))
		remaining -= volume
	}

	if remaining > 1e-12 {
		b.nextTicket++
		position := &models.Position{
			Ticket:    b.nextTicket,
			Symbol:    request.Symbol,
			Side:      request.Side,
			Volume:    remaining,
			OpenPrice: price,
			OpenTime:  at,
			Comment:   request.Comment,
		}
		b.setExits(position, request)
		b.positions[request.Symbol] = position
	}
	return closed
}

// Close flattens the position of symbol at price.
func (b *Book) Close(symbol string, price float64, at time.Time) (Closed, bool) {
	position, ok := b.positions[symbol]
	if !ok {
		return Closed{}, false
	}
	return b.reduce(position, position.Volume, price, at), true
}

// Position returns a copy of the open position of symbol.
func (b *Book) Position(symbol string) (models.Position, bool) {
	position, ok := b.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *position, true
}

// Positions returns copies of all open positions ordered by ticket.
func (b *Book) Positions() []models.Position {
	positions := make([]models.Position, 0, len(b.positions))
	for _, position := range b.positions {
		positions = append(positions, *position)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticket < positions[j].Ticket })
	return positions
}

// UnrealizedPnL values the open position of symbol at price.
func (b *Book) UnrealizedPnL(symbol string, price float64) float64 {
	position, ok := b.positions[symbol]
	if !ok {
		return 0
	}
	return b.valuer(symbol, (price-position.OpenPrice)*position.Side.Direction(), position.Volume)
}

func (b *Book) reduce(position *models.Position, volume, price float64, at time.Time) Closed {
	result := Closed{
		Position:  *position,
		Volume:    volume,
		ExitPrice: price,
		ExitTime:  at,
		Profit:    b.valuer(position.Symbol, (price-position.OpenPrice)*position.Side.Direction(), volume),
	}
	result.Position.Volume = volume

	position.Volume -= volume
	if position.Volume <= 1e-12 {
		delete(b.positions, position.Symbol)
	}
	return result
}

func (b *Book) setExits(position *models.Position, request models.OrderRequest) {
	if request.StopLoss > 0 {
		position.StopLoss = request.StopLoss
	}
	if request.TakeProfit > 0 {
		position.TakeProfit = request.TakeProfit
	}
}
