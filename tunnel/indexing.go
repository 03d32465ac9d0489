package tunnel

// state is the orchestrator's five-value FSM state.
type state int

const (
	stateInactive state = iota
	stateShouldEstablishTunnelConnection
	stateExpectTunnelConnectionEstablished
	stateShouldSendHTTPRequest
	stateExpectHTTPResponse
)

func (s state) String() string {
	switch s {
	case stateInactive:
		return "inactive"
	case stateShouldEstablishTunnelConnection:
		return "shouldEstablishTunnelConnection"
	case stateExpectTunnelConnectionEstablished:
		return "expectTunnelConnectionEstablished"
	case stateShouldSendHTTPRequest:
		return "shouldSendHttpRequest"
	case stateExpectHTTPResponse:
		return "expectHttpResponse"
	default:
		return "unknown"
	}
}

// currentLayer is the indexing-contract function consulted when wrapping a
// new TLS layer: given the number of layers already on the stack (before
// the new one is pushed), it returns the index into targets the new layer
// should use for SNI. The first layer (raw TCP, pushed alone) and the
// first TLS wrap both resolve to target 0; every wrap after that walks one
// target further.
//
// currentTargetIdx and nextTargetIdx are carried for contract parity;
// orchestrator.go's control flow tracks the live target index directly
// rather than re-deriving it from a layer count at each step, but the
// formulas must still agree bit-for-bit, which indexing_test.go checks.
func currentLayer(numLayers int) int {
	if numLayers < 2 {
		return 0
	}
	return numLayers - 1
}

func currentTargetIdx(numLayers int) int {
	if currentLayer(numLayers) < 2 {
		return 0
	}
	return currentLayer(numLayers) - 1
}

func nextTargetIdx(numLayers int) int {
	return currentTargetIdx(numLayers) + 1
}

// nextStateAfterLayer implements the shared terminal-branch rule used by
// transitions 1 and 3/5: once the layer just opened targets the last
// entry of targets (the origin), the next step is sending the user's
// request; otherwise another CONNECT tunnel remains to be established.
func nextStateAfterLayer(targetIdx, numTargets int) state {
	if targetIdx == numTargets-1 {
		return stateShouldSendHTTPRequest
	}
	return stateShouldEstablishTunnelConnection
}
