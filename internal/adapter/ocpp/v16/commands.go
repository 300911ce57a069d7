package v16

import (
	"encoding/json"
	"fmt"

	"github.com/evpower/evpower-backend/internal/domain"
)

// callPayload builds the OCPP Call payload for a bus command. Commands
// that carry an explicit Payload pass it through unchanged.
func callPayload(cmd *domain.StationCommand) (interface{}, error) {
	switch cmd.Action {
	case domain.CmdRemoteStartTransaction:
		return map[string]interface{}{
			"connectorId": cmd.ConnectorNumber,
			"idTag":       cmd.IdTag,
		}, nil

	case domain.CmdRemoteStopTransaction:
		return map[string]interface{}{
			"transactionId": cmd.TransactionID,
		}, nil

	case domain.CmdUnlockConnector:
		return map[string]interface{}{
			"connectorId": cmd.ConnectorNumber,
		}, nil

	case domain.CmdReset:
		if len(cmd.Payload) > 0 {
			return json.RawMessage(cmd.Payload), nil
		}
		return map[string]interface{}{"type": "Soft"}, nil

	case domain.CmdChangeAvailability:
		if len(cmd.Payload) > 0 {
			return json.RawMessage(cmd.Payload), nil
		}
		return map[string]interface{}{
			"connectorId": cmd.ConnectorNumber,
			"type":        "Operative",
		}, nil

	case domain.CmdGetConfiguration, domain.CmdClearCache, domain.CmdGetLocalListVersion:
		if len(cmd.Payload) > 0 {
			return json.RawMessage(cmd.Payload), nil
		}
		return map[string]interface{}{}, nil

	case domain.CmdChangeConfiguration, domain.CmdTriggerMessage,
		domain.CmdGetDiagnostics, domain.CmdUpdateFirmware, domain.CmdSendLocalList:
		if len(cmd.Payload) == 0 {
			return nil, fmt.Errorf("%s requires a payload", cmd.Action)
		}
		return json.RawMessage(cmd.Payload), nil

	default:
		return nil, fmt.Errorf("unknown command action %q", cmd.Action)
	}
}
