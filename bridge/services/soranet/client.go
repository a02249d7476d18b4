/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package soranet

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var logger = logging.MustGetLogger("soranet")

// RequestStatus is the status of a bridge request on the SORA network
type RequestStatus string

const (
	Pending        RequestStatus = "Pending"
	Frozen         RequestStatus = "Frozen"
	ApprovalsReady RequestStatus = "ApprovalsReady"
	Failed         RequestStatus = "Failed"
	Done           RequestStatus = "Done"
	Broken         RequestStatus = "Broken"
)

// IsFinal returns true if the request will not change status anymore
func (s RequestStatus) IsFinal() bool {
	return s == Done || s == Failed || s == Broken
}

// UnmarshalJSON accepts a bare variant name or a single-key object whose key is the variant,
// as Failed and Broken carry their dispatch errors.
func (s *RequestStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = RequestStatus(name)
		return nil
	}
	var variant map[string]json.RawMessage
	if err := json.Unmarshal(data, &variant); err != nil {
		return errors.Wrapf(err, "invalid request status [%s]", string(data))
	}
	if len(variant) != 1 {
		return errors.Errorf("expected a single request status variant, got %d", len(variant))
	}
	for k := range variant {
		*s = RequestStatus(k)
	}
	return nil
}

// ApprovedRequest is an outgoing request with the signatures of the bridge peers
type ApprovedRequest struct {
	Request    json.RawMessage
	Signatures []driver.Signature
}

func (r *ApprovedRequest) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return errors.Errorf("expected request and signatures, got %d elements", len(tuple))
	}
	r.Request = tuple[0]
	return json.Unmarshal(tuple[1], &r.Signatures)
}

// Request is a bridge request and its status
type Request struct {
	Request json.RawMessage
	Status  RequestStatus
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return errors.Errorf("expected request and status, got %d elements", len(tuple))
	}
	r.Request = tuple[0]
	return json.Unmarshal(tuple[1], &r.Status)
}

// DispatchError is the Err side of a runtime result
type DispatchError struct {
	Raw json.RawMessage
}

func (e *DispatchError) Error() string {
	return "dispatch error: " + string(e.Raw)
}

type result struct {
	Ok  json.RawMessage `json:"Ok"`
	Err json.RawMessage `json:"Err"`
}

// Client calls the bridge RPC methods of a SORA node over HTTP
type Client struct {
	endpoint string
	client   *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// ApprovedRequests returns the signed proofs of the given outgoing requests.
// Requests not approved yet are missing from the result.
func (c *Client) ApprovedRequests(ctx context.Context, hashes []string, networkID uint32) ([]ApprovedRequest, error) {
	var reply []ApprovedRequest
	if err := c.call(ctx, "ethBridge_getApprovedRequests", []any{hashes, networkID}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Requests returns the given requests with their status
func (c *Client) Requests(ctx context.Context, hashes []string, networkID uint32) ([]Request, error) {
	var reply []Request
	if err := c.call(ctx, "ethBridge_getRequests", []any{hashes, networkID, true}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// AccountRequests returns the hashes of the requests of an account, filtered by status if not empty
func (c *Client) AccountRequests(ctx context.Context, account string, filter RequestStatus) ([]string, error) {
	var status any
	if len(filter) != 0 {
		status = filter
	}
	var reply []string
	if err := c.call(ctx, "ethBridge_getAccountRequests", []any{account, status}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, reply any) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return errors.Wrapf(err, "failed encoding [%s]", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed creating request [%s]", method)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debugf("calling [%s] on [%s]", method, c.endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed calling [%s]", method)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("[%s] received status code %d", method, resp.StatusCode)
	}

	var r result
	if err := json2.DecodeClientResponse(resp.Body, &r); err != nil {
		return errors.Wrapf(err, "[%s] failed", method)
	}
	if len(r.Err) != 0 && string(r.Err) != "null" {
		return errors.WithMessagef(&DispatchError{Raw: r.Err}, "[%s] failed", method)
	}
	if len(r.Ok) == 0 {
		return errors.Errorf("[%s] returned neither Ok nor Err", method)
	}
	if err := json.Unmarshal(r.Ok, reply); err != nil {
		return errors.Wrapf(err, "failed decoding [%s] result", method)
	}
	return nil
}
