package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/offline"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Tipos de operación del catálogo de artículos.
const (
	KindCreateArticle = "article.create"
	KindUpdateArticle = "article.update"
)

type createArticlePayload struct {
	Article entity.Article `json:"article"`
}

type updateArticlePayload struct {
	ArticleID string                   `json:"articleId"`
	Changes   dto.UpdateArticleRequest `json:"changes"`
	At        time.Time                `json:"at"`
}

// RegisterArticleHandlers registra en r las operaciones del catálogo.
func RegisterArticleHandlers(r *offline.Registry) {
	r.Register(KindCreateArticle, func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := offline.Decode[createArticlePayload](raw)
		if err != nil {
			return nil, err
		}
		return createArticleTx(p), nil
	})
	r.Register(KindUpdateArticle, func(raw json.RawMessage) (repository.TxFunc, error) {
		p, err := offline.Decode[updateArticlePayload](raw)
		if err != nil {
			return nil, err
		}
		return updateArticleTx(p), nil
	})
}

// createArticleTx crea el artículo si su código no está en uso.
func createArticleTx(p createArticlePayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		dup, err := tx.Query(ctx, entity.CollectionArticles, repository.Where("code", p.Article.Code))
		if err != nil {
			return err
		}
		if len(dup) > 0 {
			return fmt.Errorf("%w: código %s ya existe", domain.ErrConflict, p.Article.Code)
		}
		a := p.Article
		return repository.Articles.Store(ctx, tx, &a)
	}
}

// updateArticleTx aplica los cambios de catálogo. Si cambia MinStock el estado se re-deriva
// con el stock leído en la misma transacción.
func updateArticleTx(p updateArticlePayload) repository.TxFunc {
	return func(ctx context.Context, tx repository.Tx) error {
		a, err := repository.Articles.Load(ctx, tx, p.ArticleID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("artículo %s: %w", p.ArticleID, domain.ErrNotFound)
		}
		applyArticleChanges(a, p.Changes)
		if a.MaxStock > 0 && a.MaxStock < a.MinStock {
			return fmt.Errorf("%w: stock máximo %d menor que el mínimo %d", domain.ErrInvalidInput, a.MaxStock, a.MinStock)
		}
		a.Status = entity.DeriveArticleStatus(a.CurrentStock, a.MinStock)
		a.UpdatedAt = p.At
		return repository.Articles.Store(ctx, tx, a)
	}
}

func applyArticleChanges(a *entity.Article, in dto.UpdateArticleRequest) {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		a.Description = *in.Description
	}
	if in.Category != nil {
		a.Category = *in.Category
	}
	if in.Unit != nil {
		a.Unit = *in.Unit
	}
	if in.MinStock != nil {
		a.MinStock = *in.MinStock
	}
	if in.MaxStock != nil {
		a.MaxStock = *in.MaxStock
	}
	if in.SupplierID != nil {
		a.SupplierID = *in.SupplierID
	}
	if in.Location != nil {
		a.Location = *in.Location
	}
}

// ArticleUseCase casos de uso del catálogo de artículos. CurrentStock y Status se manejan
// vía movimientos y conciliación.
type ArticleUseCase struct {
	repo     *offline.Repository[entity.Article, *entity.Article]
	executor *offline.Executor
}

// NewArticleUseCase construye el caso de uso.
func NewArticleUseCase(repo *offline.Repository[entity.Article, *entity.Article], executor *offline.Executor) *ArticleUseCase {
	return &ArticleUseCase{repo: repo, executor: executor}
}

// Create crea un nuevo artículo con stock 0. El código debe ser único (ErrConflict).
func (uc *ArticleUseCase) Create(ctx context.Context, in dto.CreateArticleRequest) (*dto.ArticleWriteResponse, error) {
	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" || strings.TrimSpace(in.Unit) == "" {
		return nil, fmt.Errorf("%w: código, nombre y unidad requeridos", domain.ErrInvalidInput)
	}
	if in.MinStock < 0 || in.MaxStock < 0 || in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: valores negativos", domain.ErrInvalidInput)
	}
	if in.MaxStock > 0 && in.MaxStock < in.MinStock {
		return nil, fmt.Errorf("%w: stock máximo menor que el mínimo", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	a := entity.Article{
		ID:          uuid.New().String(),
		Code:        code,
		Name:        name,
		Description: in.Description,
		Category:    in.Category,
		Unit:        in.Unit,
		MinStock:    in.MinStock,
		MaxStock:    in.MaxStock,
		Status:      entity.DeriveArticleStatus(0, in.MinStock),
		UnitCost:    in.UnitCost,
		SupplierID:  in.SupplierID,
		Location:    in.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	op, err := offline.NewOperation(KindCreateArticle, createArticlePayload{Article: a},
		entity.EntityKey(entity.CollectionArticles, a.ID))
	if err != nil {
		return nil, err
	}
	out, err := uc.executor.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	return &dto.ArticleWriteResponse{Article: toArticleResponse(&a), WriteResult: writeResult(out)}, nil
}

// GetByID obtiene un artículo por ID; ErrNotFound si no existe.
func (uc *ArticleUseCase) GetByID(ctx context.Context, id string) (*dto.ArticleResponse, error) {
	a, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("artículo %s: %w", id, domain.ErrNotFound)
	}
	out := toArticleResponse(a)
	return &out, nil
}

// Update actualiza los datos de catálogo. No permite modificar CurrentStock ni Status.
func (uc *ArticleUseCase) Update(ctx context.Context, id string, in dto.UpdateArticleRequest) (*dto.ArticleWriteResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id requerido", domain.ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: nombre vacío", domain.ErrInvalidInput)
	}
	if (in.MinStock != nil && *in.MinStock < 0) || (in.MaxStock != nil && *in.MaxStock < 0) {
		return nil, fmt.Errorf("%w: valores negativos", domain.ErrInvalidInput)
	}
	// Con ambos límites se valida aquí; con uno solo se compara contra el guardado en la tx.
	if in.MinStock != nil && in.MaxStock != nil && *in.MaxStock > 0 && *in.MaxStock < *in.MinStock {
		return nil, fmt.Errorf("%w: stock máximo menor que el mínimo", domain.ErrInvalidInput)
	}
	op, err := offline.NewOperation(KindUpdateArticle, updateArticlePayload{
		ArticleID: id,
		Changes:   in,
		At:        time.Now().UTC(),
	}, entity.EntityKey(entity.CollectionArticles, id))
	if err != nil {
		return nil, err
	}
	out, err := uc.executor.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	resp := &dto.ArticleWriteResponse{WriteResult: writeResult(out)}
	if a, err := uc.repo.Get(ctx, id); err == nil && a != nil {
		resp.Article = toArticleResponse(a)
	}
	return resp, nil
}

// Valuation valor del stock (currentStock * unitCost), opcionalmente solo de un estado.
func (uc *ArticleUseCase) Valuation(ctx context.Context, status string) (*dto.ValuationResponse, error) {
	var filters []repository.Filter
	if status != "" {
		filters = append(filters, repository.Where("status", status))
	}
	total, err := uc.repo.SumProduct(ctx, "currentStock", "unitCost", filters...)
	if err != nil {
		return nil, err
	}
	return &dto.ValuationResponse{Status: status, TotalValue: total}, nil
}

// List lista artículos ordenados por código, con paginación.
func (uc *ArticleUseCase) List(ctx context.Context, status string, limit, offset int) (*dto.ArticleListResponse, error) {
	var filters []repository.Filter
	if status != "" {
		filters = append(filters, repository.Where("status", status))
	}
	list, err := uc.repo.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	total := len(list)
	page := paginate(total, limit, offset)
	items := make([]dto.ArticleResponse, 0, page.end-page.start)
	for _, a := range list[page.start:page.end] {
		items = append(items, toArticleResponse(a))
	}
	return &dto.ArticleListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset, Total: total},
	}, nil
}

func toArticleResponse(a *entity.Article) dto.ArticleResponse {
	return dto.ArticleResponse{
		ID:           a.ID,
		Code:         a.Code,
		Name:         a.Name,
		Description:  a.Description,
		Category:     a.Category,
		Unit:         a.Unit,
		CurrentStock: a.CurrentStock,
		MinStock:     a.MinStock,
		MaxStock:     a.MaxStock,
		Status:       a.Status,
		UnitCost:     a.UnitCost,
		SupplierID:   a.SupplierID,
		BatchNumber:  a.BatchNumber,
		ExpiryDate:   a.ExpiryDate,
		Location:     a.Location,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func writeResult(out offline.Outcome) dto.WriteResult {
	return dto.WriteResult{
		OperationID: out.OperationID,
		Synced:      out.Synced,
		Warning:     string(out.Warning),
		Advisory:    out.Advisory,
	}
}

type pageBounds struct{ start, end int }

func paginate(total, limit, offset int) pageBounds {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return pageBounds{start: offset, end: end}
}
