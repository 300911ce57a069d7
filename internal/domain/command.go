package domain

import "encoding/json"

// Command actions accepted on a station's cmd topic.
const (
	CmdRemoteStartTransaction = "RemoteStartTransaction"
	CmdRemoteStopTransaction  = "RemoteStopTransaction"
	CmdReset                  = "Reset"
	CmdUnlockConnector        = "UnlockConnector"
	CmdChangeAvailability     = "ChangeAvailability"
	CmdChangeConfiguration    = "ChangeConfiguration"
	CmdGetConfiguration       = "GetConfiguration"
	CmdClearCache             = "ClearCache"
	CmdTriggerMessage         = "TriggerMessage"
	CmdGetDiagnostics         = "GetDiagnostics"
	CmdUpdateFirmware         = "UpdateFirmware"
	CmdSendLocalList          = "SendLocalList"
	CmdGetLocalListVersion    = "GetLocalListVersion"
)

// StationCommand is the envelope published on cmd:<station_id>. The
// actor is its single consumer and translates it into an OCPP Call.
type StationCommand struct {
	Action          string          `json:"action"`
	ConnectorNumber int             `json:"connector_id,omitempty"`
	IdTag           string          `json:"id_tag,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	LimitType       string          `json:"limit_type,omitempty"`
	LimitValue      float64         `json:"limit_value,omitempty"`
	TransactionID   int             `json:"transaction_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

func (c *StationCommand) Marshal() []byte {
	data, _ := json.Marshal(c)
	return data
}

// Event subjects published to the integration queue.
const (
	EventSessionStarted = "sessions.started"
	EventSessionSettled = "sessions.settled"
	EventStationOffline = "stations.offline"
	EventChargingError  = "charging.errors"
)
