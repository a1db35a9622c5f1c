package lsp

import "encoding/json"

type configurationParams struct {
	Items []configurationItem `json:"items"`
}

type configurationItem struct {
	Section string `json:"section,omitempty"`
}

// registerDefaultHandlers wires the server-request handlers every
// client needs regardless of language: workspace/configuration (every
// section returns an empty object, since this client has no
// section-specific settings to report), and client/registerCapability
// and window/workDoneProgress/create (both acknowledged with a null
// result). No handler is registered for workspace/applyEdit, so such a
// request is answered with method-not-found.
func (c *Client) registerDefaultHandlers() {
	c.RegisterServerRequestHandler("workspace/configuration", c.handleConfiguration)
	c.RegisterServerRequestHandler("client/registerCapability", func(json.RawMessage) (any, error) {
		return nil, nil
	})
	c.RegisterServerRequestHandler("window/workDoneProgress/create", func(json.RawMessage) (any, error) {
		return nil, nil
	})
}

func (c *Client) handleConfiguration(params json.RawMessage) (any, error) {
	var p configurationParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	result := make([]map[string]any, len(p.Items))
	for i := range p.Items {
		result[i] = map[string]any{}
	}
	return result, nil
}
