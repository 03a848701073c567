package storage

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"classroom-relay/internal/model"
	"classroom-relay/internal/relay"
)

// ErrBoardNotFound returned when a board key resolves to nothing
var ErrBoardNotFound = errors.New("board not found")

// GormBoardStore is the Postgres-backed board store. It implements
// relay.StrokeStore for the hub and serves the REST read/create surface.
type GormBoardStore struct {
	db *gorm.DB
}

// NewGormBoardStore creates a board store over the given DB
func NewGormBoardStore(db *gorm.DB) *GormBoardStore {
	return &GormBoardStore{db: db}
}

// ResolveBoardID maps a wire board key to a row id. Clients may send the
// numeric id or the classroom id the board was created for.
func (s *GormBoardStore) ResolveBoardID(boardKey string) (int64, error) {
	if id, err := strconv.ParseInt(boardKey, 10, 64); err == nil {
		return id, nil
	}

	var board model.Board
	if err := s.db.Select("id").Where("classroom_id = ?", boardKey).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrBoardNotFound
		}
		return 0, err
	}
	return board.ID, nil
}

// AppendStroke appends one stroke row to the board's durable record
func (s *GormBoardStore) AppendStroke(boardKey string, authorID int64, stroke relay.Stroke) error {
	boardID, err := s.ResolveBoardID(boardKey)
	if err != nil {
		return fmt.Errorf("append stroke: %w", err)
	}

	row := model.BoardStroke{
		BoardID:   boardID,
		AuthorID:  authorID,
		X0:        stroke.X0,
		Y0:        stroke.Y0,
		X1:        stroke.X1,
		Y1:        stroke.Y1,
		Color:     stroke.Color,
		Thickness: stroke.Thickness,
		Eraser:    stroke.Eraser,
	}

	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("append stroke: %w", err)
	}
	return nil
}

// ClearStrokes empties the board's stroke list
func (s *GormBoardStore) ClearStrokes(boardKey string) error {
	boardID, err := s.ResolveBoardID(boardKey)
	if err != nil {
		return fmt.Errorf("clear strokes: %w", err)
	}

	if err := s.db.Where("board_id = ?", boardID).Delete(&model.BoardStroke{}).Error; err != nil {
		return fmt.Errorf("clear strokes: %w", err)
	}
	return nil
}

// GetBoard loads a board and its full stroke history in accepted order
func (s *GormBoardStore) GetBoard(boardKey string) (*model.Board, []model.BoardStroke, error) {
	boardID, err := s.ResolveBoardID(boardKey)
	if err != nil {
		return nil, nil, err
	}

	var board model.Board
	if err := s.db.First(&board, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrBoardNotFound
		}
		return nil, nil, err
	}

	var strokes []model.BoardStroke
	if err := s.db.Where("board_id = ?", boardID).Order("id ASC").Find(&strokes).Error; err != nil {
		return nil, nil, err
	}

	return &board, strokes, nil
}

// GetOrCreateByClassroom creates the classroom's board on first call and
// returns the existing one afterwards. A concurrent double create loses
// the unique-index race and refetches.
func (s *GormBoardStore) GetOrCreateByClassroom(classroomID, name string, ownerID int64, password *string) (*model.Board, bool, error) {
	var board model.Board
	err := s.db.Where("classroom_id = ?", classroomID).First(&board).Error
	if err == nil {
		return &board, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	board = model.Board{
		Name:        name,
		OwnerID:     ownerID,
		ClassroomID: classroomID,
		IsProtected: password != nil && *password != "",
		Password:    password,
	}
	if err := s.db.Create(&board).Error; err != nil {
		// lost the race: someone else created it between lookup and insert
		var existing model.Board
		if ferr := s.db.Where("classroom_id = ?", classroomID).First(&existing).Error; ferr == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &board, true, nil
}
