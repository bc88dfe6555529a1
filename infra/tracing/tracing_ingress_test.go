package tracing

import (
	"net/http"
	"net/http/httptest"
	"stateflow/testinfra"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/mocktracer"
)

func TestTracingIngress(t *testing.T) {
	RegisterTestingT(t)

	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)

	router := gin.Default()
	router.Use(TracingIngress())
	router.GET("/v1/items/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("span named by route template with request tags", func(t *testing.T) {
		tracer.Reset()

		req := httptest.NewRequest(http.MethodGet, "/v1/items/12345", nil)
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))

		spans := tracer.FinishedSpans()
		Expect(len(spans)).To(Equal(1))
		s := spans[0]
		Expect(s.OperationName).To(Equal("GET /v1/items/:id"))
		Expect(s.ParentID).To(Equal(0))
		Expect(s.Tags()).To(Equal(map[string]interface{}{
			"span.kind":        ext.SpanKindEnum("server"),
			"http.method":      "GET",
			"http.url":         "/v1/items/12345",
			"http.status_code": uint16(200),
		}))
	})

	t.Run("unrouted request falls back to the raw path", func(t *testing.T) {
		tracer.Reset()

		req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNotFound))

		spans := tracer.FinishedSpans()
		Expect(len(spans)).To(Equal(1))
		Expect(spans[0].OperationName).To(Equal("GET /no/such/route"))
		Expect(spans[0].Tags()["http.status_code"]).To(Equal(uint16(404)))
	})

	t.Run("child trace joins the propagated context", func(t *testing.T) {
		tracer.Reset()

		clientSpan := tracer.StartSpan("client")
		req := httptest.NewRequest(http.MethodGet, "/v1/items/6", nil)
		tracer.Inject(clientSpan.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
		status, _, _ := testinfra.ExecuteRequest(req, router)
		clientSpan.Finish()
		Expect(status).To(Equal(http.StatusOK))

		spans := tracer.FinishedSpans()
		Expect(len(spans)).To(Equal(2))
		s0 := spans[1]
		Expect(s0.OperationName).To(Equal("client"))
		s1 := spans[0]
		Expect(s1.OperationName).To(Equal("GET /v1/items/:id"))
		Expect(s1.ParentID).To(Equal(s0.SpanContext.SpanID))
		Expect(s1.SpanContext.TraceID).To(Equal(s0.SpanContext.TraceID))
		Expect(s1.SpanContext.Sampled).To(BeTrue())
	})
}
