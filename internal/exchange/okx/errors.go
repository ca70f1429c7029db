package okx

import (
	"errors"
	"fmt"

	"okx-connector/internal/core"
)

// APIError is a business rejection reported by the exchange, either as a
// non-zero top level code or a non-zero per-entry sCode.
type APIError struct {
	Op    string
	Code  string
	SCode string
	Msg   string
}

func (e APIError) Error() string {
	if e.SCode != "" && e.SCode != codeOK {
		return fmt.Sprintf("okx %s rejected code=%s sCode=%s: %s", e.Op, e.Code, e.SCode, e.Msg)
	}
	return fmt.Sprintf("okx %s rejected code=%s: %s", e.Op, e.Code, e.Msg)
}

// GatewayError is returned by the REST gateway. Err is either a classified
// APIError or the underlying transport failure.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "okx rest " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

var sCodeKinds = map[string]error{
	"51008": core.ErrInsufficientBalance,
	"51131": core.ErrInsufficientBalance,
	"51016": core.ErrDuplicateOrder,
	"51400": core.ErrOrderNotFound,
	"51401": core.ErrOrderNotFound,
	"51603": core.ErrOrderNotFound,
}

// resultError inspects a code/msg/data result and returns nil only when the
// top level code and every entry's sCode are zero.
func resultError(op, code, msg string, rows []resultRow) error {
	if code != codeOK {
		apiErr := APIError{Op: op, Code: code, Msg: msg}
		if len(rows) > 0 && rows[0].SCode != "" && rows[0].SCode != codeOK {
			apiErr.SCode = rows[0].SCode
			if rows[0].SMsg != "" {
				apiErr.Msg = rows[0].SMsg
			}
		}
		return classifyAPIError(apiErr)
	}
	for _, row := range rows {
		if row.SCode != "" && row.SCode != codeOK {
			return classifyAPIError(APIError{Op: op, Code: code, SCode: row.SCode, Msg: row.SMsg})
		}
	}
	return nil
}

func classifyAPIError(apiErr APIError) error {
	kinds := make([]error, 0, 2)
	if kind, ok := sCodeKinds[apiErr.SCode]; ok {
		kinds = append(kinds, kind)
	} else if kind, ok := sCodeKinds[apiErr.Code]; ok {
		kinds = append(kinds, kind)
	}
	if apiErr.Op == opOrder && len(kinds) == 0 {
		kinds = append(kinds, core.ErrOrderRejected)
	}
	if len(kinds) == 0 {
		return apiErr
	}
	return errors.Join(append([]error{apiErr}, kinds...)...)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
