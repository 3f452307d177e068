package gatt

import (
	"testing"

	"github.com/srgg/blecentral/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRACPAbortRequestRoundTrip(t *testing.T) {
	req := NewRACPAbort()
	encoded := req.Encode(codec.LittleEndian)
	assert.Equal(t, []byte{byte(RACPOpAbortOperation), byte(RACPOperatorNull)}, encoded)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	assert.Equal(t, req, decoded)
}

func TestRACPAbortSuccessResponseRoundTrip(t *testing.T) {
	resp := NewRACPGeneralResponse(RACPOpAbortOperation, RACPResponseSuccess)
	encoded := resp.Encode(codec.LittleEndian)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	assert.Equal(t, RACPOpResponseCode, decoded.OpCode)
	require.NotNil(t, decoded.Operand.RequestOpCode)
	require.NotNil(t, decoded.Operand.ResponseCode)
	assert.Equal(t, RACPOpAbortOperation, *decoded.Operand.RequestOpCode)
	assert.Equal(t, RACPResponseSuccess, *decoded.Operand.ResponseCode)
}

func TestRACPAbortUnsuccessfulIsTypedError(t *testing.T) {
	err := &RACPResponseError{Code: RACPResponseAbortUnsuccessful}
	assert.Equal(t, "record access control point: response code 7", err.Error())
}

func TestRACPReportNumberOfStoredRecordsRequestRoundTrip(t *testing.T) {
	req := NewRACPReportNumberOfStoredRecords(RACPOperatorAllRecords)
	encoded := req.Encode(codec.LittleEndian)
	assert.Equal(t, []byte{byte(RACPOpReportNumberOfStoredRecords), byte(RACPOperatorAllRecords)}, encoded)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	assert.Equal(t, req, decoded)
}

func TestRACPNumberOfStoredRecordsResponseRoundTrip(t *testing.T) {
	n := uint16(42)
	resp := RecordAccessControlPoint{
		OpCode:   RACPOpNumberOfStoredRecordsResponse,
		Operator: RACPOperatorNull,
		Operand:  RACPOperand{NumberOfRecords: &n},
	}
	encoded := resp.Encode(codec.LittleEndian)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	require.NotNil(t, decoded.Operand.NumberOfRecords)
	assert.Equal(t, uint16(42), *decoded.Operand.NumberOfRecords)
}

func TestRACPWithinRangeInclusiveOperandRoundTrip(t *testing.T) {
	lo, hi := uint16(10), uint16(100)
	req := RecordAccessControlPoint{
		OpCode:   RACPOpReportStoredRecords,
		Operator: RACPOperatorWithinRangeInclusive,
		Operand: RACPOperand{
			FilterType: RACPFilterTypeSequenceNumber,
			FilterMin:  &lo,
			FilterMax:  &hi,
		},
	}
	encoded := req.Encode(codec.LittleEndian)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	require.NotNil(t, decoded.Operand.FilterMin)
	require.NotNil(t, decoded.Operand.FilterMax)
	assert.Equal(t, lo, *decoded.Operand.FilterMin)
	assert.Equal(t, hi, *decoded.Operand.FilterMax)
	assert.Equal(t, RACPFilterTypeSequenceNumber, decoded.Operand.FilterType)
}

func TestRACPGreaterThanOrEqualToOperandRoundTrip(t *testing.T) {
	v := uint16(5)
	req := RecordAccessControlPoint{
		OpCode:   RACPOpReportStoredRecords,
		Operator: RACPOperatorGreaterThanOrEqualTo,
		Operand: RACPOperand{
			FilterType:  RACPFilterTypeSequenceNumber,
			FilterValue: &v,
		},
	}
	encoded := req.Encode(codec.LittleEndian)

	var decoded RecordAccessControlPoint
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	require.NotNil(t, decoded.Operand.FilterValue)
	assert.Equal(t, v, *decoded.Operand.FilterValue)
}
