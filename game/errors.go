package game

import "errors"

// Placement errors. They are rejected locally and never sent over the wire.
var (
	ErrOutOfBounds   = errors.New("ship out of bounds")
	ErrOverlap       = errors.New("ship overlaps another ship")
	ErrAlreadyPlaced = errors.New("ship already placed")
	ErrUnknownShip   = errors.New("unknown ship kind")
)

// Turn and phase errors.
var (
	ErrWrongPhase      = errors.New("action not allowed in this phase")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrAlreadyAttacked = errors.New("cell already attacked")
	ErrAttackPending   = errors.New("waiting for the result of the previous attack")
	ErrGameOver        = errors.New("game is over")
	ErrDisconnected    = errors.New("session disconnected")
)

// Errors for peer messages that were dropped.
var (
	ErrNoPendingAttack = errors.New("result without a pending attack")
	ErrBadWinner       = errors.New("unknown winner token")
	ErrUnexpected      = errors.New("unexpected message")
)
