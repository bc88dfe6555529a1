package common

import "errors"

var ErrEdgeEndpointsRequired = errors.New("both fromSid and toSid are required")

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
