package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/stats"
	"github.com/relloyd/retail-loader/warehouse"
)

type WebServerConfig struct {
	LogLevel         string           `errorTxt:"log level" mandatory:"yes"`
	Scheme           string           `errorTxt:"scheme" mandatory:"no"`
	Addr             net.IP           `errorTxt:"address" mandatory:"no"`
	Port             int              `errorTxt:"port" mandatory:"no"`
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	WarehouseName    string           `errorTxt:"warehouse connection name" mandatory:"yes"`
	PipelineName     string
	StackDumpOnPanic bool
}

// RunWebServer serves the read-only query API until SIGINT or a request to /stop.
func RunWebServer(web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	log := newLogger(web.LogLevel, web.StackDumpOnPanic)
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	if web.PipelineName == "" {
		web.PipelineName = constants.DefaultPipelineName
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectionTestTimeout)
	w, err := openWarehouseByName(ctx, log, web.Connections, web.WarehouseName, web.PipelineName)
	cancel()
	if err != nil {
		return err
	}
	defer w.Close()
	srv, chanStopServer := runServer(log, web, w, stats.NewMetrics())
	return waitForServer(log, srv, chanStopServer)
}

// NewRouter registers the API routes against reader r.
func NewRouter(log logger.Logger, r warehouse.Reader, status StatusReader, metrics *stats.Metrics, chanStop chan string) *mux.Router {
	m := mux.NewRouter()
	m.HandleFunc("/stop", GetHandlerStopServer(log, chanStop))
	m.Path("/health").HandlerFunc(GetHandlerHealth(log, r))
	api := m.PathPrefix("/api").Methods(http.MethodGet).Subrouter()
	api.Path("/summary").HandlerFunc(GetHandlerSummary(log, r))
	api.Path("/products").HandlerFunc(GetHandlerProducts(log, r))
	api.Path("/products/{stockCode}").HandlerFunc(GetHandlerProduct(log, r))
	api.Path("/customers").HandlerFunc(GetHandlerCustomers(log, r))
	api.Path("/customers/{customerId}").HandlerFunc(GetHandlerCustomer(log, r))
	api.Path("/countries").HandlerFunc(GetHandlerCountries(log, r))
	api.Path("/sales/metrics").HandlerFunc(GetHandlerSalesMetrics(log, r))
	api.Path("/batch/status").HandlerFunc(GetHandlerBatchStatus(log, status))
	api.Path("/quarantine").HandlerFunc(GetHandlerQuarantine(log, r))
	if metrics != nil {
		m.Path("/metrics").Handler(metrics.Handler())
	}
	return m
}

// runServer starts a web server and returns:
// 1) the server; and
// 2) a channel that can be used to stop the web server
func runServer(log logger.Logger, web *WebServerConfig, w warehouse.Reader, metrics *stats.Metrics) (*http.Server, chan string) {
	chanStopServer := make(chan string, 1)
	r := NewRouter(log, w, warehouseStatus{w: w}, metrics, chanStopServer)
	srv := &http.Server{ // set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Panic(err)
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return srv, chanStopServer
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string) error {
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C).
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	fmt.Println() // new line for a clean looking CLI.
	log.Info("Shutting down web server...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	return srv.Shutdown(ctx) // waits for open requests until the deadline.
}
