package service

import (
	"context"
	"fmt"

	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

// ApplicationService posts jobs, takes applications and resolves them into contracts.
type ApplicationService struct {
	ledgerBase
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(deps LedgerDeps) (*ApplicationService, error) {
	base, err := newLedgerBase(deps, "application_service")
	if err != nil {
		return nil, err
	}
	return &ApplicationService{ledgerBase: base}, nil
}

// CreateJobPost creates an open job post owned by the acting employer. Admins may
// post on behalf of req.EmployerID.
func (s *ApplicationService) CreateJobPost(
	ctx context.Context,
	actor auth.Actor,
	req *model.CreateJobPostRequest,
) (*model.JobPost, error) {
	switch {
	case actor.Role == auth.RoleEmployer:
		req.EmployerID = actor.ID
	case actor.Role == auth.RoleAdmin:
	default:
		return nil, apperrors.Forbidden("only employers can create job posts")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	post := &model.JobPost{
		EmployerID:      req.EmployerID,
		Title:           req.Title,
		ContractType:    req.ContractType,
		RateCents:       req.RateCents,
		FixedPriceCents: req.FixedPriceCents,
		Status:          model.JobPostStatusOpen,
	}
	if req.ContractType == model.ContractTypeHourly {
		post.FixedPriceCents = nil
	} else {
		post.RateCents = nil
	}

	err := s.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		return tx.InsertJobPost(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job post created", "job_post_id", post.ID, "employer_id", post.EmployerID)
	return post, nil
}

// Apply records a worker's application for an open job post. A second application
// by the same worker fails with Conflict.
func (s *ApplicationService) Apply(
	ctx context.Context,
	actor auth.Actor,
	req *model.CreateApplicationRequest,
) (*model.JobApplication, error) {
	if actor.Role != auth.RoleWorker {
		return nil, apperrors.Forbidden("only workers can apply to job posts")
	}
	req.WorkerID = actor.ID
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var app *model.JobApplication
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		post, err := tx.GetJobPost(ctx, req.JobPostID)
		if err != nil {
			return err
		}
		if post.Status != model.JobPostStatusOpen {
			return apperrors.InvalidState("job post is closed")
		}
		if post.EmployerID == actor.ID {
			return apperrors.Validation("cannot apply to your own job post")
		}
		app = &model.JobApplication{
			JobPostID:         post.ID,
			WorkerID:          actor.ID,
			ProposedRateCents: req.ProposedRateCents,
			CoverLetter:       req.CoverLetter,
			Status:            model.ApplicationStatusPending,
		}
		return tx.InsertApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// AcceptApplication hires the applicant: the application becomes hired, every
// other open application on the post is rejected, the post closes and a pending
// contract is created with the post's terms, all in one transaction. A post hires
// once, so a closed post or one that already has a live contract is refused.
// Hourly posts take the rate from the accepted proposal when it carries one.
func (s *ApplicationService) AcceptApplication(
	ctx context.Context,
	actor auth.Actor,
	applicationID string,
) (*model.AcceptResult, error) {
	var res model.AcceptResult
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		app, post, err := s.loadForEmployer(ctx, tx, actor, applicationID)
		if err != nil {
			return err
		}
		if !app.Status.Open() {
			return apperrors.InvalidStatef("cannot accept an application that is %s", app.Status)
		}
		if post.Status != model.JobPostStatusOpen {
			return apperrors.InvalidState("job post is closed")
		}
		live, err := tx.HasLiveContract(ctx, post.ID)
		if err != nil {
			return err
		}
		if live {
			return apperrors.InvalidState("job post already has a live contract")
		}

		if err = tx.SetApplicationStatus(ctx, app.ID, model.ApplicationStatusHired); err != nil {
			return err
		}
		app.Status = model.ApplicationStatusHired

		rejected, err := tx.RejectOpenApplications(ctx, post.ID, app.ID)
		if err != nil {
			return err
		}
		if err = tx.SetJobPostStatus(ctx, post.ID, model.JobPostStatusClosed); err != nil {
			return err
		}

		contract := contractFromPost(post, app)
		if err = tx.InsertContract(ctx, contract); err != nil {
			return err
		}

		res = model.AcceptResult{
			Application:      *app,
			Contract:         *contract,
			RejectedSiblings: make([]string, 0, len(rejected)),
		}
		out.add(app.WorkerID, model.EventApplicationHired, res.Contract)
		for i := range rejected {
			res.RejectedSiblings = append(res.RejectedSiblings, rejected[i].ID)
			out.add(rejected[i].WorkerID, model.EventApplicationRejected, rejected[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "application accepted",
		"application_id", applicationID,
		"contract_id", res.Contract.ID,
		"rejected_siblings", len(res.RejectedSiblings),
		"actor", actor.String(),
	)
	return &res, nil
}

func contractFromPost(post *model.JobPost, app *model.JobApplication) *model.Contract {
	postID, appID := post.ID, app.ID
	c := &model.Contract{
		JobPostID:     &postID,
		ApplicationID: &appID,
		EmployerID:    post.EmployerID,
		WorkerID:      app.WorkerID,
		Type:          post.ContractType,
		Status:        model.ContractStatusPending,
	}
	switch post.ContractType {
	case model.ContractTypeHourly:
		rate := post.RateCents
		if app.ProposedRateCents != nil {
			rate = app.ProposedRateCents
		}
		if rate != nil {
			v := *rate
			c.RateCents = &v
		}
	case model.ContractTypeFixed:
		if post.FixedPriceCents != nil {
			v := *post.FixedPriceCents
			c.FixedPriceCents = &v
		}
	}
	return c
}

// loadForEmployer locks the application and checks that actor owns its job post.
// Anyone else gets NotFound.
func (s *ApplicationService) loadForEmployer(
	ctx context.Context,
	tx core.LedgerTx,
	actor auth.Actor,
	applicationID string,
) (*model.JobApplication, *model.JobPost, error) {
	if actor.Role != auth.RoleEmployer && actor.Role != auth.RoleAdmin {
		if actor.Role == auth.RoleWorker {
			return nil, nil, apperrors.NotFound("application not found")
		}
		return nil, nil, apperrors.Forbidden("only employers can review applications")
	}
	app, err := tx.LockApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	post, err := tx.GetJobPost(ctx, app.JobPostID)
	if err != nil {
		return nil, nil, fmt.Errorf("load job post: %w", err)
	}
	if actor.Role == auth.RoleEmployer && post.EmployerID != actor.ID {
		return nil, nil, apperrors.NotFound("application not found")
	}
	return app, post, nil
}

// WithdrawApplication lets the applicant reject their own open application.
func (s *ApplicationService) WithdrawApplication(
	ctx context.Context,
	actor auth.Actor,
	applicationID string,
) (*model.JobApplication, error) {
	if actor.Role == auth.RoleEmployer {
		return nil, apperrors.Forbidden("employers reject applications instead of withdrawing them")
	}
	var app *model.JobApplication
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx core.LedgerTx) error {
		var err error
		app, err = tx.LockApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.WorkerID != actor.ID && actor.Role != auth.RoleAdmin {
			return apperrors.NotFound("application not found")
		}
		if !app.Status.Open() {
			return apperrors.InvalidStatef("cannot withdraw an application that is %s", app.Status)
		}
		app.Status = model.ApplicationStatusRejected
		return tx.SetApplicationStatus(ctx, app.ID, app.Status)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// reviewOrder ranks the employer-driven review statuses; applications only move forward.
var reviewOrder = map[model.ApplicationStatus]int{
	model.ApplicationStatusPending:     0,
	model.ApplicationStatusViewed:      1,
	model.ApplicationStatusShortlisted: 2,
}

// AdvanceApplication moves an open application forward in review (viewed,
// shortlisted) or rejects it.
func (s *ApplicationService) AdvanceApplication(
	ctx context.Context,
	actor auth.Actor,
	applicationID string,
	to model.ApplicationStatus,
) (*model.JobApplication, error) {
	if to != model.ApplicationStatusViewed && to != model.ApplicationStatusShortlisted &&
		to != model.ApplicationStatusRejected {
		return nil, apperrors.ValidationField("status", "status must be viewed, shortlisted or rejected")
	}

	var app *model.JobApplication
	err := s.inTx(ctx, func(ctx context.Context, tx core.LedgerTx, out *outbox) error {
		var err error
		app, _, err = s.loadForEmployer(ctx, tx, actor, applicationID)
		if err != nil {
			return err
		}
		if !app.Status.Open() {
			return apperrors.InvalidStatef("cannot move an application that is %s", app.Status)
		}
		if to != model.ApplicationStatusRejected && reviewOrder[to] <= reviewOrder[app.Status] {
			return apperrors.InvalidStatef("cannot move an application from %s to %s", app.Status, to)
		}
		if err = tx.SetApplicationStatus(ctx, app.ID, to); err != nil {
			return err
		}
		app.Status = to
		if to == model.ApplicationStatusRejected {
			out.add(app.WorkerID, model.EventApplicationRejected, *app)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}
