package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// mapError traduce errores del driver a los errores de infraestructura del dominio.
// Los errores de negocio devueltos por las funciones de transacción pasan sin cambios.
func mapError(err error) error {
	if err == nil || domain.IsBusiness(err) || errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient_resources, too_many_connections
			return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03", // cannot_connect_now
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01": // deadlock_detected
			return fmt.Errorf("%w: %s", domain.ErrRemoteUnavailable, pgErr.Message)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return err
}

// nextBackoff duplica d hasta listenBackoffMax.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > listenBackoffMax {
		return listenBackoffMax
	}
	return d
}

// sleepCtx espera d; false si ctx se cancela antes.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
