// Package networking lets remote listeners hear the mix over WebRTC.
//
// The engine publishes one PCMU track. A listener creates a receive only peer connection,
// posts its offer to the MonitorServer over HTTP and gets the answer in the response.
// Every listener is sent the same track.
package networking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

const ListenPath = "/listen"

var errMonitorClosed = errors.New("monitor server is closed")

type MonitorServer struct {
	logger *slog.Logger

	api                     *webrtc.API
	connectionConfiguration webrtc.Configuration
	track                   webrtc.TrackLocal

	incomingSDPOfferServer *http.ServeMux

	connectionsMutex sync.Mutex
	connections      map[*webrtc.PeerConnection]struct{}
	closed           bool
}

// Create a MonitorServer sending track to every listener.
//
// connectionConfig is used for every webrtc.PeerConnection the server answers,
// see https://github.com/pion/webrtc for details.
func NewMonitorServer(track webrtc.TrackLocal, connectionConfig webrtc.Configuration) (*MonitorServer, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	server := &MonitorServer{
		logger: slog.Default().With(
			"monitor server uuid", uuid.New(),
		),
		api:                     api,
		connectionConfiguration: connectionConfig,
		track:                   track,
		incomingSDPOfferServer:  http.NewServeMux(),
		connections:             make(map[*webrtc.PeerConnection]struct{}),
	}
	server.incomingSDPOfferServer.HandleFunc("POST "+ListenPath, server.listenIncomingSessionOffers)
	return server, nil
}

func (server *MonitorServer) Handler() http.Handler {
	return server.incomingSDPOfferServer
}

// Serve listeners on addr until ctx is done.
func (server *MonitorServer) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()
	server.logger.Info("monitor listening", "addr", addr, "path", ListenPath)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(httpServer.Shutdown(shutdownCtx), server.Close())
}

// Number of listeners currently connected or connecting.
func (server *MonitorServer) NumListeners() int {
	server.connectionsMutex.Lock()
	defer server.connectionsMutex.Unlock()
	return len(server.connections)
}

// Hang up on every listener. Later offers are refused.
func (server *MonitorServer) Close() error {
	server.connectionsMutex.Lock()
	server.closed = true
	connections := server.connections
	server.connections = make(map[*webrtc.PeerConnection]struct{})
	server.connectionsMutex.Unlock()

	var err error
	for pc := range connections {
		err = errors.Join(err, pc.Close())
	}
	return err
}

func (server *MonitorServer) register(pc *webrtc.PeerConnection) error {
	server.connectionsMutex.Lock()
	defer server.connectionsMutex.Unlock()
	if server.closed {
		return errMonitorClosed
	}
	server.connections[pc] = struct{}{}
	return nil
}

func (server *MonitorServer) untrack(pc *webrtc.PeerConnection) {
	server.connectionsMutex.Lock()
	_, ok := server.connections[pc]
	delete(server.connections, pc)
	server.connectionsMutex.Unlock()
	if ok {
		pc.Close()
	}
}

// Answer a listener's SDP offer.
//
// The answering webrtc.PeerConnection sends the monitor track and is kept
// until it fails, is closed by the listener, or the server is closed.
func (server *MonitorServer) listenIncomingSessionOffers(w http.ResponseWriter, r *http.Request) {
	requestLogger := server.logger.WithGroup("request").With(
		"requestUUID", uuid.New().String(),
	)
	requestLogger.Debug("new incoming session offer")

	var listenRequest ListenRequest
	if err := json.NewDecoder(r.Body).Decode(&listenRequest); err != nil {
		requestLogger.Error(
			"error while decoding new session offer from JSON",
			"err", err,
		)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	requestLogger = requestLogger.With("listener", listenRequest.Listener)

	pc, err := server.api.NewPeerConnection(server.connectionConfiguration)
	if err != nil {
		requestLogger.Error(
			"error while creating new peer connection for listening",
			"err", err,
			"connection config", server.connectionConfiguration,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := server.register(pc); err != nil {
		pc.Close()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	fail := func(status int) {
		server.untrack(pc)
		w.WriteHeader(status)
	}

	pc.OnConnectionStateChange(func(pcs webrtc.PeerConnectionState) {
		requestLogger.Info("listener connection state change", "peer connection state", pcs.String())
		switch pcs {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			go server.untrack(pc)
		}
	})

	rtpSender, err := pc.AddTrack(server.track)
	if err != nil {
		requestLogger.Error("error adding monitor track", "err", err)
		fail(http.StatusInternalServerError)
		return
	}

	// RTCP has to be read for the interceptors to run
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	if err := pc.SetRemoteDescription(listenRequest.WebRTCSessionDescription); err != nil {
		requestLogger.Error(
			"error while setting remote description of new peer connection",
			"err", err,
		)
		fail(http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		requestLogger.Error(
			"error while creating answer of new peer connection",
			"err", err,
		)
		fail(http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		requestLogger.Error(
			"error while setting local description of new peer connection",
			"err", err,
		)
		fail(http.StatusInternalServerError)
		return
	}

	// Answer with every candidate, there is no trickle ICE
	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		fail(http.StatusServiceUnavailable)
		return
	}
	requestLogger.Debug("answering peer connection ICE resolved")

	answerJSON, err := json.Marshal(pc.LocalDescription())
	if err != nil {
		requestLogger.Error(
			"error while marshalling local description of new peer connection to JSON",
			"err", err,
		)
		fail(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(answerJSON)
}

// --------------------------------------------------------------------------------

// Connect to the monitor at endpoint, the full URL of its listen path.
//
// onTrack is called once the monitor track starts arriving. The returned connection
// is owned by the caller, who should close it.
func Dial(
	ctx context.Context,
	endpoint string,
	listener string,
	connectionConfig webrtc.Configuration,
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver),
) (*webrtc.PeerConnection, error) {
	requestLogger := slog.Default().WithGroup("request").With(
		"requestUUID", uuid.New().String(),
		"endpoint", endpoint,
	)
	requestLogger.Debug("new SDP offer started")

	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(connectionConfig)
	if err != nil {
		return nil, err
	}
	if onTrack != nil {
		pc.OnTrack(onTrack)
	}

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	answer, err := postOffer(ctx, endpoint, ListenRequest{
		Listener:                 listener,
		WebRTCSessionDescription: *pc.LocalDescription(),
	})
	if err != nil {
		requestLogger.Error("error while exchanging offer with monitor", "err", err)
		pc.Close()
		return nil, err
	}

	if err = pc.SetRemoteDescription(answer); err != nil {
		requestLogger.Error(
			"error while setting remote description in dialing",
			"err", err,
		)
		pc.Close()
		return nil, err
	}
	requestLogger.Debug("peer connection set")

	return pc, nil
}

func postOffer(ctx context.Context, endpoint string, listenRequest ListenRequest) (webrtc.SessionDescription, error) {
	var answer webrtc.SessionDescription

	body, err := json.Marshal(listenRequest)
	if err != nil {
		return answer, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return answer, err
	}
	req.Header.Set("Content-Type", "application/json")

	// If ctx is canceled, or its deadline is reached, this returns with non-nil error
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return answer, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return answer, fmt.Errorf("monitor answered %s", resp.Status)
	}

	err = json.NewDecoder(resp.Body).Decode(&answer)
	return answer, err
}
