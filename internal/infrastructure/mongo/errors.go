package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Códigos de servidor que se tratan como cuota o indisponibilidad.
const (
	codeQuotaExceeded       = 8000  // AtlasError
	codeOperationExceeded   = 12501 // límite de operaciones del plan compartido
	codeExceededMemoryLimit = 292
	codeNetworkTimeout      = 89
	codeNotWritablePrimary  = 10107
	codePrimarySteppedDown  = 189
	codeInterruptedShutdown = 91
)

// mapError traduce errores del driver a los errores de infraestructura del dominio.
func mapError(err error) error {
	if err == nil || domain.IsBusiness(err) || errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		switch {
		case se.HasErrorCode(codeQuotaExceeded), se.HasErrorCode(codeOperationExceeded), se.HasErrorCode(codeExceededMemoryLimit):
			return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
		case se.HasErrorCode(codeNetworkTimeout), se.HasErrorCode(codeNotWritablePrimary),
			se.HasErrorCode(codePrimarySteppedDown), se.HasErrorCode(codeInterruptedShutdown),
			se.HasErrorLabel("TransientTransactionError"):
			return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
		}
	}
	// Sin servidores alcanzables dentro de ServerSelectionTimeout.
	var sel topology.ServerSelectionError
	if errors.As(err, &sel) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return err
}
