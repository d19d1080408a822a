package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")

	// Errores de infraestructura: activan el camino offline, nunca llegan al caller.
	ErrRemoteUnavailable = errors.New("almacén remoto no disponible")
	ErrQuotaExceeded     error = &quotaError{}
)

// quotaError es la variante de ErrRemoteUnavailable por cuota agotada.
// errors.Is(ErrQuotaExceeded, ErrRemoteUnavailable) es true.
type quotaError struct{}

func (*quotaError) Error() string        { return "cuota del almacén remoto agotada" }
func (*quotaError) Is(target error) bool { return target == ErrRemoteUnavailable }

// IsBusiness indica si err es una regla de negocio que debe propagarse al caller
// (NotFound, InsufficientStock, InvalidInput, Conflict). El resto se trata como fallo
// de infraestructura.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict)
}
