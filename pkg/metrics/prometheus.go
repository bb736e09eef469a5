package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reqCnt = &Metric{
		ID:          "reqCnt",
		Name:        "req_total",
		Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
		Type:        "counter_vec",
		Args:        []string{"code", "method", "url", "ref"},
	}
	reqDur = &Metric{
		ID:          "reqDur",
		Name:        "req_dur_ms",
		Description: "The HTTP request latencies in milliseconds.",
		Type:        "histogram_vec",
		Args:        []string{"code", "method", "url", "ref"},
	}
	resSz = &Metric{
		ID:          "resSz",
		Name:        "resp_sz_bytes",
		Description: "The HTTP response sizes in bytes.",
		Type:        "summary_vec",
		Args:        []string{"code", "method", "url", "ref"},
	}
	reqSz = &Metric{
		ID:          "reqSz",
		Name:        "req_sz_bytes",
		Description: "The HTTP request sizes in bytes.",
		Type:        "summary_vec",
		Args:        []string{"code", "method", "url", "ref"},
	}
)

const defaultMetricPath = "/metrics"

type Logger interface {
	Errorf(format string, v ...interface{})
}

// URLLabelFn controls the cardinality of the "url" label. The default uses the
// gin route template so "/api/events/:id" is one series.
type URLLabelFn func(c *gin.Context) string

// HTTP records request count, latency and sizes for a gin engine.
type HTTP struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	gatherer    prometheus.Gatherer
	MetricsPath string
	urlLabel    URLLabelFn
}

type HTTPOptions struct {
	Subsystem   string
	MetricsPath string
	URLLabel    URLLabelFn
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	Logger      Logger
}

func routeTemplate(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return "unmatched"
}

// NewHTTP registers the standard HTTP metrics. Registration failures are
// logged and the collector is still used, which keeps tests that build
// several engines in one process working.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Subsystem == "" {
		opts.Subsystem = "http"
	}
	p := &HTTP{gatherer: opts.Gatherer, MetricsPath: opts.MetricsPath, urlLabel: opts.URLLabel}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.urlLabel == nil {
		p.urlLabel = routeTemplate
	}
	for _, def := range []*Metric{reqCnt, reqDur, resSz, reqSz} {
		c := NewMetric(def, opts.Subsystem)
		if err := opts.Registerer.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				c = are.ExistingCollector
			} else if opts.Logger != nil {
				opts.Logger.Errorf("%s could not be registered in Prometheus, err=%v", def.Name, err)
			}
		}
		switch def {
		case reqCnt:
			p.reqCnt = c.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = c.(*prometheus.HistogramVec)
		case resSz:
			p.resSz = c.(*prometheus.SummaryVec)
		case reqSz:
			p.reqSz = c.(*prometheus.SummaryVec)
		}
	}
	return p
}

// Handler serves the gathered metrics.
func (p *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Router returns a dedicated engine exposing only the metrics path, so scrapes
// stay out of the API access log.
func (p *HTTP) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(p.MetricsPath, gin.WrapH(p.Handler()))
	return r
}

// HandlerFunc defines handler function for middleware
func (p *HTTP) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSize := approximateRequestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.urlLabel(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.reqSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(reqSize))
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(c.Writer.Size()))
	}
}

func approximateRequestSize(r *http.Request) int {
	s := 0
	if r.URL != nil {
		s = len(r.URL.Path)
	}
	s += len(r.Method) + len(r.Proto) + len(r.Host)
	for name, values := range r.Header {
		s += len(name)
		for _, v := range values {
			s += len(v)
		}
	}
	if r.ContentLength > 0 {
		s += int(r.ContentLength)
	}
	return s
}
