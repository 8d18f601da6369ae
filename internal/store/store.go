package store

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/session"
)

// Account links a chat-platform account to an in-game username.
type Account struct {
	ChatID    string `gorm:"primaryKey"`
	GameName  string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// Match is one completed session.
type Match struct {
	ID       int64  `gorm:"primaryKey"`
	Winner   string // "blue", "red" or "draw"
	PlayedAt time.Time
}

// Participation records one player's membership in one match.
type Participation struct {
	MatchID  int64  `gorm:"primaryKey"`
	PlayerID string `gorm:"primaryKey"`
	GameName string
	Team     string
}

// StatsRecord is one row of the aggregate scoreboard.
type StatsRecord struct {
	GameName string
	Games    int
	Wins     int
	Losses   int
	Draws    int
	Score    int
}

// Store is the match-history and scoreboard collaborator. Everything in it
// degrades: a failure loses a stat line or the scoreboard, never a queue
// or session operation.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Account{}, &Match{}, &Participation{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// SaveResult persists a finished match and each participant's side.
func (s *Store) SaveResult(sessionID int64, blue, red []player.Player, winner session.Result) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		m := Match{ID: sessionID, Winner: string(winner), PlayedAt: time.Now()}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		for _, p := range blue {
			if err := tx.Create(&Participation{MatchID: sessionID, PlayerID: string(p.ID), GameName: p.GameName, Team: string(session.TeamBlue)}).Error; err != nil {
				return err
			}
		}
		for _, p := range red {
			if err := tx.Create(&Participation{MatchID: sessionID, PlayerID: string(p.ID), GameName: p.GameName, Team: string(session.TeamRed)}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// TopPlayers returns the scoreboard rows ordered by score, wins counting
// +1 and losses -1.
func (s *Store) TopPlayers(limit int) ([]StatsRecord, error) {
	var records []StatsRecord
	err := s.db.Raw(`
		SELECT p.game_name                                          AS game_name,
		       COUNT(*)                                             AS games,
		       COUNT(*) FILTER (WHERE m.winner = p.team)            AS wins,
		       COUNT(*) FILTER (WHERE m.winner NOT IN (p.team, 'draw')) AS losses,
		       COUNT(*) FILTER (WHERE m.winner = 'draw')            AS draws,
		       COUNT(*) FILTER (WHERE m.winner = p.team)
		         - COUNT(*) FILTER (WHERE m.winner NOT IN (p.team, 'draw')) AS score
		FROM participations p
		JOIN matches m ON m.id = p.match_id
		GROUP BY p.game_name
		ORDER BY score DESC, games DESC
		LIMIT ?`, limit).Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	return records, nil
}

// LinkAccounts records the chat-to-game account link, replacing any
// previous link for the same chat account.
func (s *Store) LinkAccounts(gameName, chatID string) error {
	acc := Account{ChatID: chatID, GameName: gameName, CreatedAt: time.Now()}
	if err := s.db.Save(&acc).Error; err != nil {
		return fmt.Errorf("link accounts: %w", err)
	}
	return nil
}

// AccountByChatID resolves a chat account to its linked player identity;
// ok is false for unlinked accounts.
func (s *Store) AccountByChatID(chatID string) (Account, bool, error) {
	var acc Account
	err := s.db.First(&acc, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("account lookup: %w", err)
	}
	return acc, true, nil
}
