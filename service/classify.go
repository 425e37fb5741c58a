package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rangesecurity/chainsync/nodeclient"
	"github.com/tidwall/gjson"
)

var ErrMalformedLog = errors.New("malformed raw_log")

// ClassifyTx derives the human readable type of a transaction. Successful
// transactions use the action attribute of their message event, failed ones
// the type url of their first message.
func ClassifyTx(tx *nodeclient.TxResponse) (string, error) {
	if tx.Code != 0 {
		return tx.Tx.MessageType(0), nil
	}

	rawLog := strings.TrimSpace(tx.RawLog)
	if rawLog != "" {
		if !gjson.Valid(rawLog) || !gjson.Parse(rawLog).IsArray() {
			return "", fmt.Errorf("%w: tx %s", ErrMalformedLog, tx.TxHash)
		}
		var (
			action string
			found  bool
		)
		gjson.Parse(rawLog).ForEach(func(_, msgLog gjson.Result) bool {
			action, found = findAction(msgLog.Get("events"))
			return !found
		})
		if found {
			return actionType(action), nil
		}
	}

	// sdk 0.50+ leaves raw_log empty and only fills events
	if len(tx.Events) > 0 && gjson.ValidBytes(tx.Events) {
		if action, found := findAction(gjson.ParseBytes(tx.Events)); found {
			return actionType(action), nil
		}
	}
	return tx.Tx.MessageType(0), nil
}

func actionType(action string) string {
	return strings.ReplaceAll(action, "_", " ")
}

// returns the action attribute of the first message event
func findAction(events gjson.Result) (string, bool) {
	var (
		action string
		found  bool
	)
	events.ForEach(func(_, event gjson.Result) bool {
		if event.Get("type").String() != "message" {
			return true
		}
		event.Get("attributes").ForEach(func(_, attr gjson.Result) bool {
			key := attr.Get("key").String()
			value := attr.Get("value").String()
			if key != "action" {
				// some sdk versions base64 encode event attributes
				decodedKey, err := base64.StdEncoding.DecodeString(key)
				if err != nil || string(decodedKey) != "action" {
					return true
				}
				decodedValue, err := base64.StdEncoding.DecodeString(value)
				if err != nil {
					return true
				}
				value = string(decodedValue)
			}
			action, found = value, true
			return false
		})
		return !found
	})
	return action, found
}
