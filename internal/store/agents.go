package store

import (
	"context"
)

// Agent is the identity the daemon speaks as. Exactly one primary agent is
// expected; the primary is the row with the earliest created_at.
type Agent struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	Provider   string `db:"provider"`
	Model      string `db:"model"`
	Persona    string `db:"persona"`
	DOB        string `db:"dob"`
	Location   string `db:"location"`
	Profession string `db:"profession"`
	AboutRaw   string `db:"about_raw"`
	AgentName  string `db:"agent_name"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

// UpsertPrimaryAgent creates the primary agent or updates it in place,
// preserving its id and created_at.
func (s *Store) UpsertPrimaryAgent(ctx context.Context, agent Agent) (Agent, error) {
	existing, err := s.GetPrimaryAgent(ctx)
	now := nowStamp()
	switch {
	case err == nil:
		agent.ID = existing.ID
		agent.CreatedAt = existing.CreatedAt
		agent.UpdatedAt = now
		_, execErr := s.db.NamedExecContext(ctx, `
			UPDATE agents SET
				name = :name, provider = :provider, model = :model,
				persona = :persona, dob = :dob, location = :location,
				profession = :profession, about_raw = :about_raw,
				agent_name = :agent_name, updated_at = :updated_at
			WHERE id = :id`, agent)
		if execErr != nil {
			return Agent{}, classify(execErr)
		}
		return agent, nil
	case errNoRows(err) || isKind(err, ErrNotFound):
		agent.ID = newID()
		agent.CreatedAt = now
		agent.UpdatedAt = now
		_, execErr := s.db.NamedExecContext(ctx, `
			INSERT INTO agents (id, name, provider, model, persona, dob, location,
				profession, about_raw, agent_name, created_at, updated_at)
			VALUES (:id, :name, :provider, :model, :persona, :dob, :location,
				:profession, :about_raw, :agent_name, :created_at, :updated_at)`, agent)
		if execErr != nil {
			return Agent{}, classify(execErr)
		}
		return agent, nil
	default:
		return Agent{}, err
	}
}

// InsertAgent adds an agent row without touching the primary. Task runs can
// reference agents beyond the primary by id.
func (s *Store) InsertAgent(ctx context.Context, agent Agent) (Agent, error) {
	if agent.ID == "" {
		agent.ID = newID()
	}
	now := nowStamp()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO agents (id, name, provider, model, persona, dob, location,
			profession, about_raw, agent_name, created_at, updated_at)
		VALUES (:id, :name, :provider, :model, :persona, :dob, :location,
			:profession, :about_raw, :agent_name, :created_at, :updated_at)`, agent)
	if err != nil {
		return Agent{}, classify(err)
	}
	return agent, nil
}

// GetPrimaryAgent returns the agent row with the earliest created_at.
func (s *Store) GetPrimaryAgent(ctx context.Context) (Agent, error) {
	var agent Agent
	err := s.db.GetContext(ctx, &agent,
		"SELECT * FROM agents ORDER BY created_at ASC LIMIT 1")
	if err != nil {
		if errNoRows(err) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, classify(err)
	}
	return agent, nil
}

// DeleteAgent removes an agent; conversations and messages cascade.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	if err != nil {
		return classify(err)
	}
	return nil
}
