package peripheral

import (
	"context"
	"time"

	"github.com/srgg/blecentral/internal/codec"
	"github.com/srgg/blecentral/internal/gatt"
)

// Record Access Control Point client operations: each issues one
// control-point transaction and validates the response shape before
// handing anything back to the caller. Validation rules: the response
// op-code must be the one expected for the request, the operator must
// be null, the operand must be the expected variant, and a general
// response must name the originating request op-code. Anything else is
// ErrResponseFormat; a well-formed non-success general response is
// surfaced as *gatt.RACPResponseError.

func decodeRACP(data []byte) (gatt.RecordAccessControlPoint, bool) {
	var r gatt.RecordAccessControlPoint
	ok := r.Decode(data, codec.LittleEndian)
	return r, ok
}

func issueRACP(ctx context.Context, p *Peripheral, ref CharRef, req gatt.RecordAccessControlPoint, timeout time.Duration) (gatt.RecordAccessControlPoint, error) {
	return IssueControlPointRequest(ctx, p, ref, req.Encode(codec.LittleEndian), decodeRACP, timeout)
}

// validateRACPGeneralResponse checks a general-response frame against
// the request op-code it should acknowledge.
func validateRACPGeneralResponse(resp gatt.RecordAccessControlPoint, requestOp gatt.RACPOpCode) error {
	if resp.OpCode != gatt.RACPOpResponseCode || resp.Operator != gatt.RACPOperatorNull {
		return ErrResponseFormat
	}
	if resp.Operand.RequestOpCode == nil || resp.Operand.ResponseCode == nil {
		return ErrResponseFormat
	}
	if *resp.Operand.RequestOpCode != requestOp {
		return ErrResponseFormat
	}
	if *resp.Operand.ResponseCode != gatt.RACPResponseSuccess {
		return &gatt.RACPResponseError{Code: *resp.Operand.ResponseCode}
	}
	return nil
}

// RACPAbort aborts the peripheral's current record-access procedure.
func RACPAbort(ctx context.Context, p *Peripheral, ref CharRef, timeout time.Duration) error {
	resp, err := issueRACP(ctx, p, ref, gatt.NewRACPAbort(), timeout)
	if err != nil {
		return err
	}
	return validateRACPGeneralResponse(resp, gatt.RACPOpAbortOperation)
}

// RACPReportStoredRecords asks the peripheral to start pushing stored
// records matching op's operator/operand onto the measurement
// characteristic; the transaction itself completes with the procedure's
// general response once the transfer finishes.
func RACPReportStoredRecords(ctx context.Context, p *Peripheral, ref CharRef, op gatt.RecordAccessControlPoint, timeout time.Duration) error {
	op.OpCode = gatt.RACPOpReportStoredRecords
	resp, err := issueRACP(ctx, p, ref, op, timeout)
	if err != nil {
		return err
	}
	return validateRACPGeneralResponse(resp, gatt.RACPOpReportStoredRecords)
}

// RACPDeleteStoredRecords deletes the records selected by op's
// operator/operand.
func RACPDeleteStoredRecords(ctx context.Context, p *Peripheral, ref CharRef, op gatt.RecordAccessControlPoint, timeout time.Duration) error {
	op.OpCode = gatt.RACPOpDeleteStoredRecords
	resp, err := issueRACP(ctx, p, ref, op, timeout)
	if err != nil {
		return err
	}
	return validateRACPGeneralResponse(resp, gatt.RACPOpDeleteStoredRecords)
}

// RACPReportNumberOfStoredRecords returns how many records the
// peripheral holds for the given operator (typically all-records).
func RACPReportNumberOfStoredRecords(ctx context.Context, p *Peripheral, ref CharRef, operator gatt.RACPOperator, timeout time.Duration) (uint16, error) {
	resp, err := issueRACP(ctx, p, ref, gatt.NewRACPReportNumberOfStoredRecords(operator), timeout)
	if err != nil {
		return 0, err
	}
	if resp.OpCode == gatt.RACPOpResponseCode {
		// The peripheral rejected the request outright.
		if err := validateRACPGeneralResponse(resp, gatt.RACPOpReportNumberOfStoredRecords); err != nil {
			return 0, err
		}
		return 0, ErrResponseFormat
	}
	if resp.OpCode != gatt.RACPOpNumberOfStoredRecordsResponse || resp.Operator != gatt.RACPOperatorNull {
		return 0, ErrResponseFormat
	}
	if resp.Operand.NumberOfRecords == nil {
		return 0, ErrResponseFormat
	}
	return *resp.Operand.NumberOfRecords, nil
}
