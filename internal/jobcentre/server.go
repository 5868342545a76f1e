package jobcentre

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var connIDs atomic.Int64

var (
	responseOk    = []byte(`{"status":"ok"}` + "\n")
	responseNoJob = []byte(`{"status":"no-job"}` + "\n")
)

type request struct {
	Request string   `json:"request"`
	Queues  []string `json:"queues"`
	Wait    bool     `json:"wait"`

	Queue string          `json:"queue"`
	Job   json.RawMessage `json:"job"`
	Pri   int             `json:"pri"`

	ID int64 `json:"id"`
}

// Serve accepts connections on l and processes job-queue requests
// against a shared Center.
func Serve(l net.Listener, log logrus.FieldLogger) error {
	c := NewCenter()
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go handle(conn, c, log)
	}
}

func handle(conn net.Conn, c *Center, log logrus.FieldLogger) {
	clientID := connIDs.Add(1)
	log = log.WithField("peer", conn.RemoteAddr().String())
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	held := make(map[int64]struct{})
	defer func() {
		ids := make([]int64, 0, len(held))
		for id := range held {
			ids = append(ids, id)
		}
		c.ReleaseClient(clientID, ids)
	}()

	sendErr := func(format string, args ...any) {
		writeJSON(conn, struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{Status: "error", Error: fmt.Sprintf(format, args...)})
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			sendErr("invalid request: %s", err)
			continue
		}
		switch req.Request {
		case "put":
			id, err := c.Put(req.Queue, req.Job, req.Pri)
			if err != nil {
				sendErr("put: %s", err)
				continue
			}
			writeJSON(conn, struct {
				Status string `json:"status"`
				ID     int64  `json:"id"`
			}{Status: "ok", ID: id})

		case "get":
			job, found, err := c.Get(ctx, req.Queues, req.Wait, clientID)
			if err != nil {
				sendErr("get: %s", err)
				continue
			}
			if !found {
				if _, err := conn.Write(responseNoJob); err != nil {
					return
				}
				continue
			}
			held[job.ID] = struct{}{}
			writeJSON(conn, struct {
				Status string          `json:"status"`
				ID     int64           `json:"id"`
				Job    json.RawMessage `json:"job"`
				Pri    int             `json:"pri"`
				Queue  string          `json:"queue"`
			}{Status: "ok", ID: job.ID, Job: job.Val, Pri: job.Priority, Queue: job.Queue})

		case "delete":
			if req.ID <= 0 {
				sendErr("delete: bad id")
				continue
			}
			delete(held, req.ID)
			if c.Delete(req.ID) {
				conn.Write(responseOk)
			} else {
				conn.Write(responseNoJob)
			}

		case "abort":
			if req.ID <= 0 {
				sendErr("abort: bad id")
				continue
			}
			exists, owned := c.Abort(req.ID, clientID)
			if !exists {
				delete(held, req.ID)
				conn.Write(responseNoJob)
				continue
			}
			if !owned {
				sendErr("abort: job %d not owned by this client", req.ID)
				continue
			}
			delete(held, req.ID)
			conn.Write(responseOk)

		default:
			sendErr("unknown request type %q", req.Request)
		}
	}
	log.Debug("jobcentre: connection closed")
}

func writeJSON(conn net.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	conn.Write(append(b, '\n'))
}
