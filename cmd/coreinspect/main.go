// Command coreinspect is a JSON-request-driven diagnostic tool for the
// conservation/witness/domain/cluster/schedule/batch/runtimeinfo
// primitives: one JSON object on stdin selects an operation, one JSON
// object on stdout
// reports the result, so scripts and fixtures can exercise the library
// without writing Go.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/resonantlabs/coreruntime/batch"
	"github.com/resonantlabs/coreruntime/cluster"
	"github.com/resonantlabs/coreruntime/conservation"
	"github.com/resonantlabs/coreruntime/corehash"
	"github.com/resonantlabs/coreruntime/domain"
	"github.com/resonantlabs/coreruntime/runtimeinfo"
	"github.com/resonantlabs/coreruntime/schedule"
	"github.com/resonantlabs/coreruntime/witness"
)

type Request struct {
	Op string `json:"op"`

	DataHex   string `json:"data_hex,omitempty"`
	BeforeHex string `json:"before_hex,omitempty"`
	AfterHex  string `json:"after_hex,omitempty"`
	WindowLen int    `json:"window_len,omitempty"`

	WitnessHex string `json:"witness_hex,omitempty"`
	DataLen    int    `json:"data_len,omitempty"`

	PageCount  int   `json:"page_count,omitempty"`
	DomainSize int   `json:"domain_size,omitempty"`
	DomainCls  uint8 `json:"domain_class,omitempty"`

	Now   int64 `json:"now,omitempty"`
	Class uint8 `json:"class,omitempty"`

	BufferSize int `json:"buffer_size,omitempty"`
}

type Response struct {
	Ok  bool   `json:"ok"`
	Err string `json:"err,omitempty"`

	Sum        uint8  `json:"sum,omitempty"`
	Conserves  bool   `json:"conserves,omitempty"`
	DeltaValue uint8  `json:"delta,omitempty"`
	DigestHex  string `json:"digest_hex,omitempty"`

	WitnessHex string `json:"witness_hex,omitempty"`
	Verified   bool   `json:"verified,omitempty"`

	DomainID       uint64 `json:"domain_id,omitempty"`
	IsolationProof uint64 `json:"isolation_proof,omitempty"`
	State          string `json:"state,omitempty"`

	PageTotal    int `json:"page_total,omitempty"`
	NonEmpty     int `json:"non_empty_classes,omitempty"`
	LargestClass int `json:"largest_class,omitempty"`

	NextWindow int64 `json:"next_window,omitempty"`

	OptimalBatchSize int `json:"optimal_batch_size,omitempty"`

	VersionToken         uint32 `json:"version_token,omitempty"`
	ThreadSafe           bool   `json:"thread_safe,omitempty"`
	Optimized            bool   `json:"optimized,omitempty"`
	SupportedProjections uint32 `json:"supported_projections,omitempty"`
}

func writeResp(w *os.File, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResp(os.Stdout, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}
	writeResp(os.Stdout, handle(req))
}

// handle dispatches a single request to the matching primitive and
// builds the response. Separated from main so it can be exercised
// directly by tests, without going through stdin/stdout.
func handle(req Request) Response {
	switch req.Op {
	case "conservation_check":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		return Response{Ok: true, Sum: conservation.Sum(d), Conserves: conservation.Check(d)}

	case "conservation_delta":
		a, err := hex.DecodeString(req.BeforeHex)
		if err != nil {
			return Response{Ok: false, Err: "bad before_hex"}
		}
		b, err := hex.DecodeString(req.AfterHex)
		if err != nil {
			return Response{Ok: false, Err: "bad after_hex"}
		}
		delta, err := conservation.Delta(a, b)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		return Response{Ok: true, DeltaValue: delta}

	case "conservation_window_check":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		return Response{Ok: true, Conserves: conservation.WindowStreamingCheck(d, req.WindowLen)}

	case "hash":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		digest := corehash.Sum(d)
		return Response{Ok: true, DigestHex: hex.EncodeToString(digest[:])}

	case "witness_generate":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		w, err := witness.Generate(d)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		enc := w.Encode()
		return Response{Ok: true, WitnessHex: hex.EncodeToString(enc[:])}

	case "witness_verify":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		wireBytes, err := hex.DecodeString(req.WitnessHex)
		if err != nil || len(wireBytes) != witness.WireSize {
			return Response{Ok: false, Err: "bad witness_hex"}
		}
		w, err := witness.DecodeWithLength(wireBytes, req.DataLen)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		ok, _ := witness.Verify(w, d)
		return Response{Ok: true, Verified: ok}

	case "domain_lifecycle":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		dom, err := domain.Create(req.DomainSize, req.DomainCls)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		defer domain.Destroy(dom)
		if err := dom.Attach(d); err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		if err := dom.Verify(); err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		if err := dom.Commit(); err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		return Response{
			Ok:             true,
			DomainID:       dom.ID(),
			IsolationProof: dom.IsolationProof(),
			State:          dom.State().String(),
		}

	case "cluster_build":
		d, err := hex.DecodeString(req.DataHex)
		if err != nil {
			return Response{Ok: false, Err: "bad data_hex"}
		}
		c, err := cluster.Build(d, req.PageCount)
		if err != nil {
			return Response{Ok: false, Err: err.Error()}
		}
		defer cluster.Destroy(c)
		total, nonEmpty, largest := c.Stats()
		return Response{Ok: true, PageTotal: total, NonEmpty: nonEmpty, LargestClass: largest}

	case "schedule_next_window":
		return Response{Ok: true, NextWindow: schedule.ScheduleNextWindow(req.Now, req.Class)}

	case "batch_optimal_size":
		return Response{Ok: true, OptimalBatchSize: batch.OptimalBatchSize(req.BufferSize)}

	case "runtime_info":
		return Response{
			Ok:                   true,
			VersionToken:         runtimeinfo.VersionToken(),
			ThreadSafe:           runtimeinfo.IsThreadSafe(),
			Optimized:            conservation.IsOptimized(),
			SupportedProjections: runtimeinfo.SupportedProjections(),
		}

	default:
		return Response{Ok: false, Err: "unknown op"}
	}
}
