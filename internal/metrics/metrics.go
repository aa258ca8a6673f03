package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxm_endpoint_responses_total",
		Help: "The total number of responses served by the metrics endpoint",
	}, []string{"endpoint", "status_code"})

	// Device memory metrics
	BufferAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accel_buffer_allocations_total",
		Help: "Total number of buffer allocations by device and outcome",
	}, []string{"device", "status"})

	DeviceMemoryUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "accel_device_memory_used_bytes",
		Help: "Bytes currently reserved by live buffers on a device",
	}, []string{"device"})

	// Queue metrics
	QueueTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accel_queue_tasks_total",
		Help: "Total number of tasks executed on queues by task kind and status",
	}, []string{"kind", "status"})

	QueueTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accel_queue_task_duration_seconds",
		Help:    "Execution time of queue tasks",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12), // 1µs to ~4s
	}, []string{"kind"})

	KernelThreads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accel_kernel_element_invocations_total",
		Help: "Total number of kernel invocations (one per covered element) by backend",
	}, []string{"backend"})

	// Matrix Multiplication Metrics
	MatrixMultDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mxm_duration_ms",
		Help:    "Duration of the full matrix multiplication pipeline in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1ms to ~32s
	})

	MatrixMultSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mxm_size",
		Help: "Size N of the last N×N matrix multiplication",
	})

	MatrixMultGFLOPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mxm_gflops",
		Help: "Performance of the last matrix multiplication in GFLOPS",
	})

	MatrixMultBackend = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mxm_backend_total",
		Help: "Total number of matrix multiplications by backend",
	}, []string{"backend"})
)
