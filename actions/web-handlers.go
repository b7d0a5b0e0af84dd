package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
)

const (
	healthCheckTimeout = 5 * time.Second
	maxListLimit       = 1000
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		return nil, fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
	}
	return json.Marshal(retval)
}

func (w *WebServerResponse) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*w = Okay
	case "error":
		*w = Error
	default:
		return fmt.Errorf("unexpected status %q", s)
	}
	return nil
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
	Message      string            `json:"message,omitempty"`
}

// ResponseData wraps every API payload.
type ResponseData struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Count   int               `json:"count,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

// GetHandlerHealth reports whether the warehouse can be reached. It says nothing about pipeline progress.
func GetHandlerHealth(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			log.Warn("health check failed: ", err)
			respond(log, w, http.StatusServiceUnavailable, ResponseSimple{ServerStatus: Error, Message: fmt.Sprintf("warehouse unreachable: %v", err)})
			return
		}
		respond(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay, Message: "healthy"})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // already stopping.
		}
		respond(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerSummary(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := r.Summary(req.Context())
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Data: s})
	}
}

func GetHandlerProducts(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		limit, err := queryLimit(req)
		if err != nil {
			respondBadRequest(log, w, err)
			return
		}
		order := model.ProductOrder(strings.ToLower(req.URL.Query().Get("order_by")))
		switch order {
		case "":
			order = model.ProductOrderRevenue
		case model.ProductOrderRevenue, model.ProductOrderQuantity, model.ProductOrderCustomers:
		default:
			respondBadRequest(log, w, fmt.Errorf("order_by must be one of %v, %v, %v", model.ProductOrderRevenue, model.ProductOrderQuantity, model.ProductOrderCustomers))
			return
		}
		p, err := r.Products(req.Context(), model.ProductQuery{OrderBy: order, Limit: limit})
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Count: len(p), Data: p})
	}
}

func GetHandlerProduct(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		code := mux.Vars(req)["stockCode"]
		p, err := r.Product(req.Context(), code)
		if err != nil {
			respondError(log, w, errors.Wrapf(err, "product %v", code))
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Data: p})
	}
}

func GetHandlerCustomers(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		limit, err := queryLimit(req)
		if err != nil {
			respondBadRequest(log, w, err)
			return
		}
		segment, err := parseSegment(req.URL.Query().Get("segment"))
		if err != nil {
			respondBadRequest(log, w, err)
			return
		}
		c, err := r.Customers(req.Context(), model.CustomerQuery{Segment: segment, Limit: limit})
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Count: len(c), Data: c})
	}
}

func GetHandlerCustomer(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["customerId"]
		c, err := r.Customer(req.Context(), id)
		if err != nil {
			respondError(log, w, errors.Wrapf(err, "customer %v", id))
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Data: c})
	}
}

func GetHandlerCountries(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		c, err := r.Countries(req.Context())
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Count: len(c), Data: c})
	}
}

func GetHandlerSalesMetrics(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		m, err := r.SalesMetrics(req.Context())
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Count: len(m), Data: m})
	}
}

func GetHandlerBatchStatus(log logger.Logger, s StatusReader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		n := 0
		if v := req.URL.Query().Get("runs"); v != "" {
			var err error
			if n, err = strconv.Atoi(v); err != nil || n < 1 || n > maxListLimit {
				respondBadRequest(log, w, fmt.Errorf("runs must be an integer between 1 and %v", maxListLimit))
				return
			}
		}
		st, err := s.Status(req.Context(), n)
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Data: st})
	}
}

func GetHandlerQuarantine(log logger.Logger, r warehouse.Reader) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		limit, err := queryLimit(req)
		if err != nil {
			respondBadRequest(log, w, err)
			return
		}
		q, err := r.Quarantined(req.Context(), limit)
		if err != nil {
			respondError(log, w, err)
			return
		}
		respond(log, w, http.StatusOK, ResponseData{Status: Okay, Count: len(q), Data: q})
	}
}

// queryLimit reads ?limit=. Zero means the reader's default.
func queryLimit(req *http.Request) (int, error) {
	v := req.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %v", maxListLimit)
	}
	return n, nil
}

func parseSegment(s string) (model.CustomerSegment, error) {
	if s == "" {
		return "", nil
	}
	s = strings.ToUpper(s)
	for _, seg := range []model.CustomerSegment{
		model.CustomerSegmentVip,
		model.CustomerSegmentHigh,
		model.CustomerSegmentMedium,
		model.CustomerSegmentLow,
		model.CustomerSegmentNew,
	} {
		if string(seg) == s || strings.TrimSuffix(string(seg), "_VALUE") == s {
			return seg, nil
		}
	}
	return "", fmt.Errorf("unknown customer segment %q", s)
}

func respondBadRequest(log logger.Logger, w http.ResponseWriter, err error) {
	log.Info("bad request: ", err)
	respond(log, w, http.StatusBadRequest, ResponseData{Status: Error, Message: err.Error()})
}

// respondError maps warehouse.ErrNotFound to 404 and everything else to 500.
func respondError(log logger.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, warehouse.ErrNotFound) {
		respond(log, w, http.StatusNotFound, ResponseData{Status: Error, Message: err.Error()})
		return
	}
	log.Error(err)
	respond(log, w, http.StatusInternalServerError, ResponseData{Status: Error, Message: err.Error()})
}

// respond will marshal i to JSON and write it to w with the given status code.
func respond(log logger.Logger, w http.ResponseWriter, code int, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error("unable to marshal response: ", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Warn("unable to write response: ", err)
	}
}
