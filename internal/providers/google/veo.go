package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mourne/internal/providers"
)

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type veoRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons,omitempty"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// VideoAdapter renders a clip with Veo, animating the source still when one
// is supplied.
func (c *Client) VideoAdapter() providers.Adapter {
	return providers.AdapterFunc(c.generateVideo)
}

func (c *Client) generateVideo(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, providers.ErrMissingCredential
	}
	instance := veoInstance{Prompt: withLocale(req.Prompt, req.Locale)}
	if src := req.Source; src != nil && len(src.Data) > 0 {
		instance.Image = &veoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(src.Data),
			MimeType:           firstNonEmpty(src.MIME, "image/png"),
		}
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.opts.BaseURL, url.PathEscape(req.Model))
	var op veoOperation
	err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodPost, endpoint, c.header(req.Credential),
		veoRequest{Instances: []veoInstance{instance}, Parameters: veoParameters{AspectRatio: "16:9"}}, &op)
	if err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, providers.Invalid(providerName, "operation name missing")
	}
	c.logger.Debug().Str("request_id", req.RequestID).Str("operation", op.Name).Msg("google: veo operation started")
	providers.Report(progress, 5)

	// Veo reports no progress, so progress is estimated from elapsed time
	// and held below 100 until the operation completes.
	started := time.Now()
	err = providers.Poll(ctx, c.opts.PollInterval, c.opts.MaxWait, func(ctx context.Context) (bool, error) {
		if err := providers.DoJSON(ctx, c.opts.HTTPClient, providerName, http.MethodGet, c.opts.BaseURL+"/"+op.Name, c.header(req.Credential), nil, &op); err != nil {
			return false, err
		}
		if !op.Done {
			providers.Report(progress, estimate(time.Since(started)))
		}
		return op.Done, nil
	})
	if err != nil {
		return nil, err
	}
	if op.Error != nil {
		return nil, providers.Rejected(providerName, op.Error.Message)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		if op.Response != nil && len(op.Response.GenerateVideoResponse.RaiMediaFilteredReasons) > 0 {
			return nil, providers.Rejected(providerName, strings.Join(op.Response.GenerateVideoResponse.RaiMediaFilteredReasons, "; "))
		}
		return nil, providers.Invalid(providerName, "operation finished without video")
	}
	uri := op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	data, mime, err := providers.Download(ctx, c.opts.HTTPClient, providerName, uri, c.header(req.Credential))
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mime, "video/") {
		mime = "video/mp4"
	}
	providers.Report(progress, 100)
	return &providers.Result{Data: data, MIME: mime, URL: uri}, nil
}

func estimate(elapsed time.Duration) int {
	pct := 5 + int(90*elapsed/veoExpected)
	if pct > 95 {
		return 95
	}
	return pct
}
