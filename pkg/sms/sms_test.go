package sms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, checkResponse(map[string]interface{}{
		"statusCode": 200,
		"body":       map[string]interface{}{"Code": "OK"},
	}))

	assert.Error(t, checkResponse(map[string]interface{}{
		"statusCode": 500,
	}))

	err := checkResponse(map[string]interface{}{
		"statusCode": 200,
		"body":       map[string]interface{}{"Code": "isv.BUSINESS_LIMIT_CONTROL", "Message": "触发流控"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "isv.BUSINESS_LIMIT_CONTROL")
}

func TestMockClient(t *testing.T) {
	client, err := NewClient("mock")
	require.NoError(t, err)

	mock := client.(*MockClient)
	mock.FailNext = true
	assert.Error(t, client.SendSingle(context.Background(), "13800138000", "sign", "SMS_1", "{}"))
	assert.NoError(t, client.SendSingle(context.Background(), "13800138000", "sign", "SMS_1", "{}"))
	assert.Len(t, mock.Sent(), 2)

	_, err = NewClient("tencent")
	assert.Error(t, err)
}
