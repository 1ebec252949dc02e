package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// StreamJSONArray decodes a top-level JSON array one element at a time and
// hands each to fn. An empty body is an empty array. fn errors stop the
// stream and are returned as is.
func StreamJSONArray[T any](ctx context.Context, r io.Reader, fn func(T) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "json: read opening token")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return eris.Errorf("json: expected '[', got %v", tok)
	}

	for n := 0; dec.More(); n++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "json: context cancelled")
		}
		var item T
		if err := dec.Decode(&item); err != nil {
			return eris.Wrapf(err, "json: decode element %d", n)
		}
		if err := fn(item); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "json: read closing token")
	}
	return nil
}

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// FetchJSON downloads url with f and decodes the body as a single JSON value.
func FetchJSON[T any](ctx context.Context, f Fetcher, url string) (*T, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	return DecodeJSONObject[T](body)
}

// FetchJSONArray downloads url with f and collects the elements of the JSON
// array it returns.
func FetchJSONArray[T any](ctx context.Context, f Fetcher, url string) ([]T, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	var out []T
	err = StreamJSONArray(ctx, body, func(item T) error {
		out = append(out, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
