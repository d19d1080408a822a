package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// EntryInput entrada de mercancía. UnitCost (opcional) actualiza el costo promedio ponderado.
type EntryInput struct {
	ArticleID    string               `json:"articleId"`
	Quantity     int                  `json:"quantity"`
	UserID       string               `json:"userId"`
	Reason       string               `json:"reason,omitempty"`
	Reference    string               `json:"reference,omitempty"`
	SupplierID   string               `json:"supplierId,omitempty"`
	BatchNumber  string               `json:"batchNumber,omitempty"`
	ExpiryDate   *time.Time           `json:"expiryDate,omitempty"`
	Location     string               `json:"location,omitempty"`
	UnitCost     *decimal.Decimal     `json:"unitCost,omitempty"`
	QualityCheck *entity.QualityCheck `json:"qualityCheck,omitempty"`
}

// ExitInput salida de mercancía.
type ExitInput struct {
	ArticleID   string `json:"articleId"`
	Quantity    int    `json:"quantity"`
	UserID      string `json:"userId"`
	Reason      string `json:"reason,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// MovementReceipt resultado de registrar un movimiento. Si Synced es false los valores
// reflejan la aplicación local pendiente de sincronizar.
type MovementReceipt struct {
	OperationID   string
	MovementID    string
	Status        string
	NewStock      int
	ArticleStatus string
	Synced        bool
	Warning       offline.Warning
	Advisory      string
}

// Ledger libro de movimientos de stock. Cada entrada o salida cambia el stock del artículo
// y crea su movimiento de forma atómica.
type Ledger struct {
	executor  *offline.Executor
	cache     *offline.Cache
	movements *offline.Repository[entity.Movement, *entity.Movement]
	log       *logger.Logger
	now       func() time.Time
}

// NewLedger construye el libro de stock.
func NewLedger(
	executor *offline.Executor,
	cache *offline.Cache,
	movements *offline.Repository[entity.Movement, *entity.Movement],
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		executor:  executor,
		cache:     cache,
		movements: movements,
		log:       log.Component("stock-ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordEntry registra una entrada: stock + cantidad, estado re-derivado y movimiento
// validado (pendiente si el control de calidad falló).
func (l *Ledger) RecordEntry(ctx context.Context, in EntryInput) (*MovementReceipt, error) {
	in.ArticleID = strings.TrimSpace(in.ArticleID)
	if err := validateMovementInput(in.ArticleID, in.UserID, in.Quantity); err != nil {
		return nil, err
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: costo unitario negativo", domain.ErrInvalidInput)
	}
	p := entryPayload{MovementID: uuid.New().String(), At: l.now(), EntryInput: in}
	out, err := l.execute(ctx, KindRecordEntry, p, in.ArticleID, p.MovementID)
	if err != nil {
		return nil, err
	}
	return l.receipt(p.MovementID, entryStatus(in.QualityCheck), in.ArticleID, out), nil
}

// RecordExit registra una salida. La verificación de stock y el descuento ocurren en la misma
// transacción; el movimiento queda pendiente de validación.
func (l *Ledger) RecordExit(ctx context.Context, in ExitInput) (*MovementReceipt, error) {
	in.ArticleID = strings.TrimSpace(in.ArticleID)
	if err := validateMovementInput(in.ArticleID, in.UserID, in.Quantity); err != nil {
		return nil, err
	}
	p := exitPayload{MovementID: uuid.New().String(), At: l.now(), ExitInput: in}
	out, err := l.execute(ctx, KindRecordExit, p, in.ArticleID, p.MovementID)
	if err != nil {
		return nil, err
	}
	return l.receipt(p.MovementID, entity.MovementStatusPending, in.ArticleID, out), nil
}

// ValidateMovement pasa un movimiento pendiente a validado. No afecta el stock.
func (l *Ledger) ValidateMovement(ctx context.Context, movementID, validatorID string) (offline.Outcome, error) {
	return l.review(ctx, KindValidateMovement, movementID, validatorID, "")
}

// RejectMovement pasa un movimiento pendiente a rechazado. No afecta el stock.
func (l *Ledger) RejectMovement(ctx context.Context, movementID, validatorID, reason string) (offline.Outcome, error) {
	return l.review(ctx, KindRejectMovement, movementID, validatorID, reason)
}

func (l *Ledger) review(ctx context.Context, kind, movementID, validatorID, reason string) (offline.Outcome, error) {
	if movementID == "" || validatorID == "" {
		return offline.Outcome{}, fmt.Errorf("%w: movimiento y validador requeridos", domain.ErrInvalidInput)
	}
	op, err := offline.NewOperation(kind, reviewPayload{
		MovementID:  movementID,
		ValidatorID: validatorID,
		Reason:      strings.TrimSpace(reason),
		At:          l.now(),
	}, entity.EntityKey(entity.CollectionMovements, movementID))
	if err != nil {
		return offline.Outcome{}, err
	}
	return l.executor.Execute(ctx, op)
}

// GetMovement devuelve el movimiento; ErrNotFound si no existe.
func (l *Ledger) GetMovement(ctx context.Context, id string) (*entity.Movement, error) {
	m, err := l.movements.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("movimiento %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// ListMovements movimientos de un artículo (todos si articleID es vacío), más recientes primero.
func (l *Ledger) ListMovements(ctx context.Context, articleID string) ([]*entity.Movement, error) {
	var filters []repository.Filter
	if articleID != "" {
		filters = append(filters, repository.Where("articleId", articleID))
	}
	list, err := l.movements.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (l *Ledger) execute(ctx context.Context, kind string, payload any, articleID, movementID string) (offline.Outcome, error) {
	op, err := offline.NewOperation(kind, payload,
		entity.EntityKey(entity.CollectionArticles, articleID),
		entity.EntityKey(entity.CollectionMovements, movementID),
	)
	if err != nil {
		return offline.Outcome{}, err
	}
	out, err := l.executor.Execute(ctx, op)
	if err != nil {
		return out, err
	}
	l.log.Debug().Str("kind", kind).Str("article_id", articleID).Str("movement_id", movementID).
		Bool("synced", out.Synced).Msg("movimiento registrado")
	return out, nil
}

// receipt arma la respuesta con el estado del artículo que quedó en la caché tras la escritura.
func (l *Ledger) receipt(movementID, status, articleID string, out offline.Outcome) *MovementReceipt {
	r := &MovementReceipt{
		OperationID: out.OperationID,
		MovementID:  movementID,
		Status:      status,
		Synced:      out.Synced,
		Warning:     out.Warning,
		Advisory:    out.Advisory,
	}
	a, err := repository.Articles.Decode(articleID, l.cache.Get(entity.CollectionArticles, articleID))
	if err == nil && a != nil {
		r.NewStock = a.CurrentStock
		r.ArticleStatus = a.Status
	}
	return r
}

func validateMovementInput(articleID, userID string, qty int) error {
	switch {
	case articleID == "":
		return fmt.Errorf("%w: artículo requerido", domain.ErrInvalidInput)
	case userID == "":
		return fmt.Errorf("%w: usuario requerido", domain.ErrInvalidInput)
	case qty <= 0:
		return fmt.Errorf("%w: la cantidad debe ser un entero positivo", domain.ErrInvalidInput)
	}
	return nil
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
