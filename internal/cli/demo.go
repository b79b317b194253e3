package cli

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/saga"
)

// OrderRequest is the payload of the built-in order saga.
type OrderRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`

	// FailAt makes the n-th step fail: 1 reserve, 2 charge, 3 ship.
	FailAt int `json:"fail_at,omitempty"`
}

// Reservation is the result of the reserve step.
type Reservation struct {
	ID string `json:"id"`
}

// Payment is the result of the charge step.
type Payment struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// Shipment is the result of the ship step and of the saga.
type Shipment struct {
	Tracking    string `json:"tracking"`
	Reservation string `json:"reservation"`
	Payment     string `json:"payment"`
}

type chargeArgs struct {
	Order       OrderRequest `json:"order"`
	Reservation string       `json:"reservation"`
}

type shipArgs struct {
	Order       OrderRequest `json:"order"`
	SagaID      string       `json:"saga_id"`
	Reservation string       `json:"reservation"`
	Payment     string       `json:"payment"`
}

// orderSaga reserves stock, charges the customer and ships the order.
// Its effects are simulated; ids derive from the order id so a replayed
// run reports the same results.
type orderSaga struct {
	reserve *effect.Descriptor[OrderRequest, Reservation]
	charge  *effect.Descriptor[chargeArgs, Payment]
	ship    *effect.Descriptor[shipArgs, Shipment]

	mu          sync.Mutex
	compensated []string
}

func newOrderSaga() *orderSaga {
	o := &orderSaga{}
	o.reserve = effect.Define("reserveInventory", o.doReserve, effect.AlwaysCall[OrderRequest, Reservation], o.undoReserve)
	o.charge = effect.Define("chargePayment", o.doCharge, effect.AlwaysCall[chargeArgs, Payment], o.undoCharge)
	o.ship = effect.Define("shipOrder", o.doShip, effect.AlwaysCall[shipArgs, Shipment], o.undoShip)
	return o
}

func (o *orderSaga) workflow() saga.Workflow[OrderRequest] {
	return saga.Generate(func(y *saga.Yield, req OrderRequest) (any, error) {
		params, err := saga.Params(y)
		if err != nil {
			return nil, err
		}
		rsv, err := saga.Do[Reservation](y, o.reserve.Bind(req))
		if err != nil {
			return nil, err
		}
		pay, err := saga.Do[Payment](y, o.charge.Bind(chargeArgs{Order: req, Reservation: rsv.ID}))
		if err != nil {
			return nil, err
		}
		return saga.Do[Shipment](y, o.ship.Bind(shipArgs{
			Order:       req,
			SagaID:      params.SagaID,
			Reservation: rsv.ID,
			Payment:     pay.ID,
		}))
	})
}

func (o *orderSaga) doReserve(ctx context.Context, req OrderRequest) (Reservation, error) {
	if req.FailAt == 1 {
		return Reservation{}, effect.NewFailure("out_of_stock", "no stock for order %s", req.OrderID)
	}
	slog.Info("inventory reserved", "order_id", req.OrderID)
	return Reservation{ID: "rsv-" + req.OrderID}, nil
}

func (o *orderSaga) undoReserve(ctx context.Context, succeeded bool, rsv Reservation, req OrderRequest) error {
	if !succeeded {
		return nil
	}
	slog.Info("reservation released", "order_id", req.OrderID, "reservation", rsv.ID)
	o.record("release " + rsv.ID)
	return nil
}

func (o *orderSaga) doCharge(ctx context.Context, args chargeArgs) (Payment, error) {
	if args.Order.FailAt == 2 {
		return Payment{}, effect.NewFailure("declined", "card declined for order %s", args.Order.OrderID)
	}
	slog.Info("payment captured", "order_id", args.Order.OrderID, "amount", args.Order.Amount)
	return Payment{ID: "pay-" + args.Order.OrderID, Amount: args.Order.Amount}, nil
}

func (o *orderSaga) undoCharge(ctx context.Context, succeeded bool, pay Payment, args chargeArgs) error {
	if !succeeded {
		return nil
	}
	slog.Info("payment refunded", "order_id", args.Order.OrderID, "payment", pay.ID)
	o.record("refund " + pay.ID)
	return nil
}

func (o *orderSaga) doShip(ctx context.Context, args shipArgs) (Shipment, error) {
	if args.Order.FailAt == 3 {
		return Shipment{}, effect.NewFailure("carrier_unavailable", "no carrier for order %s", args.Order.OrderID)
	}
	slog.Info("order shipped", "order_id", args.Order.OrderID)
	return Shipment{
		Tracking:    "trk-" + args.SagaID,
		Reservation: args.Reservation,
		Payment:     args.Payment,
	}, nil
}

func (o *orderSaga) undoShip(ctx context.Context, succeeded bool, shp Shipment, args shipArgs) error {
	if !succeeded {
		return nil
	}
	slog.Info("shipment cancelled", "order_id", args.Order.OrderID, "tracking", shp.Tracking)
	o.record("cancel " + shp.Tracking)
	return nil
}

func (o *orderSaga) record(action string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compensated = append(o.compensated, action)
}

func (o *orderSaga) compensations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.compensated...)
}
