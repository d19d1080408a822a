package usecase

import (
	"context"
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

// SupplierUseCase casos de uso para proveedores.
type SupplierUseCase struct {
	repo *offline.Repository[entity.Supplier, *entity.Supplier]
}

// NewSupplierUseCase construye el caso de uso.
func NewSupplierUseCase(repo *offline.Repository[entity.Supplier, *entity.Supplier]) *SupplierUseCase {
	return &SupplierUseCase{repo: repo}
}

// Create crea un nuevo proveedor activo.
func (uc *SupplierUseCase) Create(ctx context.Context, in dto.CreateSupplierRequest) (*dto.SupplierWriteResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: nombre requerido", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	s := &entity.Supplier{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Contact:   in.Contact,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Sanitize()
	out, err := uc.repo.Save(ctx, s)
	if err != nil {
		return nil, err
	}
	return &dto.SupplierWriteResponse{Supplier: toSupplierResponse(s), WriteResult: writeResult(out)}, nil
}

// GetByID obtiene un proveedor por ID; ErrNotFound si no existe.
func (uc *SupplierUseCase) GetByID(ctx context.Context, id string) (*dto.SupplierResponse, error) {
	s, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("proveedor %s: %w", id, domain.ErrNotFound)
	}
	out := toSupplierResponse(s)
	return &out, nil
}

// List lista proveedores (solo activos si onlyActive) ordenados por nombre.
func (uc *SupplierUseCase) List(ctx context.Context, onlyActive bool, limit, offset int) (*dto.SupplierListResponse, error) {
	var filters []repository.Filter
	if onlyActive {
		filters = append(filters, repository.Where("active", true))
	}
	list, err := uc.repo.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	total := len(list)
	page := paginate(total, limit, offset)
	items := make([]dto.SupplierResponse, 0, page.end-page.start)
	for _, s := range list[page.start:page.end] {
		items = append(items, toSupplierResponse(s))
	}
	return &dto.SupplierListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset, Total: total},
	}, nil
}

// Deactivate marca el proveedor como inactivo; las entradas históricas conservan la referencia.
func (uc *SupplierUseCase) Deactivate(ctx context.Context, id string) (dto.WriteResult, error) {
	out, err := uc.repo.Patch(ctx, id, repository.Document{"active": false, "updatedAt": time.Now().UTC()})
	if err != nil {
		return dto.WriteResult{}, err
	}
	return writeResult(out), nil
}

func toSupplierResponse(s *entity.Supplier) dto.SupplierResponse {
	return dto.SupplierResponse{
		ID:        s.ID,
		Name:      s.Name,
		Contact:   s.Contact,
		Email:     s.Email,
		Phone:     s.Phone,
		Address:   s.Address,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
