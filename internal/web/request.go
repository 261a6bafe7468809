package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/juju/errors"

	"github.com/Joseda-hg/todoapi/internal/model"
)

const maxBodyBytes = 1 << 20

var (
	validate     = validator.New(validator.WithRequiredStructEnabled())
	queryDecoder = newQueryDecoder()
)

func newQueryDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return decoder
}

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.NotValidf("empty request body")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.NewNotValid(err, "request body")
	}
	if err := validate.Struct(dst); err != nil {
		return errors.NewNotValid(err, "request body")
	}
	return nil
}

// readBody reads at most maxBodyBytes of the body. A larger body fails with
// an *http.MaxBytesError in the error chain.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, errors.Annotatef(err, "request body over %d bytes", tooLarge.Limit)
	} else if err != nil {
		return nil, errors.NewNotValid(err, "read request body")
	}
	return bytes.TrimSpace(data), nil
}

// decodeBatch reads the id array of a batch update. A missing or empty array
// is a bad request.
func decodeBatch(w http.ResponseWriter, r *http.Request) ([]model.ID, error) {
	data, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.BadRequestf("request body must contain the item ids")
	}
	var ids []model.ID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.NewNotValid(err, "request body")
	}
	if len(ids) == 0 {
		return nil, errors.BadRequestf("request body must contain the item ids")
	}
	return ids, nil
}

func decodePage(r *http.Request) (model.Page, error) {
	var page model.Page
	if err := queryDecoder.Decode(&page, r.URL.Query()); err != nil {
		return model.Page{}, errors.NewNotValid(err, "query")
	}
	if err := validate.Struct(page); err != nil {
		return model.Page{}, errors.NewNotValid(err, "query")
	}
	return page, nil
}

func pathID(r *http.Request, name string) model.ID {
	return model.ID(mux.Vars(r)[name])
}

func pathState(r *http.Request) (model.State, error) {
	return model.ParseState(mux.Vars(r)["state"])
}
