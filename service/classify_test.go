package service_test

import (
	"encoding/json"
	"testing"

	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/rangesecurity/chainsync/service"
	"github.com/stretchr/testify/require"
)

func TestClassifyTx(t *testing.T) {
	tests := []struct {
		name    string
		tx      *nodeclient.TxResponse
		want    string
		wantErr error
	}{
		{
			name: "delegate",
			tx:   successTx(hashOne, "delegate"),
			want: "delegate",
		},
		{
			name: "underscores become spaces",
			tx:   successTx(hashOne, "begin_redelegate"),
			want: "begin redelegate",
		},
		{
			name: "failed tx uses first message type",
			tx:   failedTx(hashOne, msgDelegate),
			want: msgDelegate,
		},
		{
			name: "log without message event falls back to message type",
			tx: &nodeclient.TxResponse{
				RawLog: `[{"msg_index":0,"events":[{"type":"transfer","attributes":[{"key":"amount","value":"1uaura"}]}]}]`,
				Tx:     txBody("/cosmos.bank.v1beta1.MsgSend"),
			},
			want: "/cosmos.bank.v1beta1.MsgSend",
		},
		{
			name: "empty raw_log reads tx events",
			tx: &nodeclient.TxResponse{
				Events: json.RawMessage(`[{"type":"tx","attributes":[]},{"type":"message","attributes":[{"key":"action","value":"/cosmos.gov.v1.MsgVote"}]}]`),
				Tx:     txBody("/cosmos.gov.v1.MsgVote"),
			},
			want: "/cosmos.gov.v1.MsgVote",
		},
		{
			name: "base64 encoded event attributes",
			tx: &nodeclient.TxResponse{
				// action=withdraw_delegator_reward
				Events: json.RawMessage(`[{"type":"message","attributes":[{"key":"YWN0aW9u","value":"d2l0aGRyYXdfZGVsZWdhdG9yX3Jld2FyZA=="}]}]`),
			},
			want: "withdraw delegator reward",
		},
		{
			name:    "malformed raw_log on success",
			tx:      &nodeclient.TxResponse{TxHash: hashOne, RawLog: `[{"events":`},
			wantErr: service.ErrMalformedLog,
		},
		{
			name:    "plain text raw_log on success",
			tx:      &nodeclient.TxResponse{TxHash: hashOne, RawLog: "out of gas"},
			wantErr: service.ErrMalformedLog,
		},
		{
			name: "failed tx without messages",
			tx:   &nodeclient.TxResponse{Code: 11, RawLog: "out of gas"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ClassifyTx(tt.tx)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
