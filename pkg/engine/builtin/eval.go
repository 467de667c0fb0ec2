package builtin

import "github.com/notnil/chess"

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
	chess.King:   0,
}

func pieceValue(pt chess.PieceType) int {
	return pieceValues[pt]
}

// evaluate scores pos in centipawns from the side to move's point of view.
func evaluate(pos *chess.Position) int {
	score := 0
	for sq, piece := range pos.Board().SquareMap() {
		v := pieceValue(piece.Type()) + placement(piece, sq)
		if piece.Color() == chess.White {
			score += v
		} else {
			score -= v
		}
	}
	if pos.Turn() == chess.Black {
		return -score
	}
	return score
}

// placement is a small positional bonus: pawns gain as they advance, minor
// pieces gain near the centre.
func placement(piece chess.Piece, sq chess.Square) int {
	file, rank := int(sq.File()), int(sq.Rank())
	if piece.Color() == chess.Black {
		rank = 7 - rank
	}
	switch piece.Type() {
	case chess.Pawn:
		bonus := (rank - 1) * 6
		if file >= 2 && file <= 5 && rank >= 3 {
			bonus += 8
		}
		return bonus
	case chess.Knight, chess.Bishop:
		return 12 - 3*(centreDistance(file)+centreDistance(int(sq.Rank())))
	case chess.Queen:
		return 4 - centreDistance(file) - centreDistance(int(sq.Rank()))
	}
	return 0
}

// centreDistance is 0 for the two central files/ranks and 3 at the edge.
func centreDistance(i int) int {
	if i < 4 {
		return 3 - i
	}
	return i - 4
}
