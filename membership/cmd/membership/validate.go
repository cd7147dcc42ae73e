package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/validation"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/authorizer"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
	"github.com/cohortlabs/cohort-stack/membership/internal/validator"
)

func newValidateCmd() *cobra.Command {
	var (
		operation string
		file      string
		userID    string
		policy    string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a request payload without applying it",
		Long: `Run a JSON or YAML request payload through the same validation and
authorization checks the service applies, and print the first error found.`,
		Example: `  membership validate --operation createGroup --file group.yaml
  membership validate --operation updateGroupMembership --file visits.json --user-id u1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(file)
			if err != nil {
				return err
			}

			v := validation.New(
				validation.WithLogger(logging.Discard()),
				validation.WithEmptinessPolicy(validation.ParseEmptinessPolicy(policy)),
			)
			err = check(cmd.Context(), validator.New(v, logging.Discard()), operation, userID, payload)

			var e *errcode.Error
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			case errors.As(err, &e):
				out, _ := json.MarshalIndent(map[string]string{
					"code":    e.Code,
					"kind":    string(e.Kind),
					"field":   e.Field,
					"message": e.Message,
				}, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return fmt.Errorf("payload rejected: %s", e.Code)
			default:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&operation, "operation", "o", "", "operation the payload is meant for")
	cmd.Flags().StringVarP(&file, "file", "f", "", "payload file (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&userID, "user-id", "", "requesting user for membership updates")
	cmd.Flags().StringVar(&policy, "emptiness-policy", "invalid_request", "invalid_request or missing")
	_ = cmd.MarkFlagRequired("operation")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func check(ctx context.Context, validators *validator.Validators, operation, userID string, payload value.Mapping) error {
	switch operation {
	case models.OperationCreateGroup:
		return validators.GroupCreate(ctx, payload)
	case models.OperationUpdateGroup:
		return validators.GroupUpdate(ctx, payload)
	case models.OperationDeleteGroup:
		return validators.GroupDelete(ctx, payload)
	case models.OperationSearchGroups:
		_, err := validators.GroupSearch(ctx, payload)
		return err
	case models.OperationUpdateMembership:
		if err := validators.MembershipUpdate(ctx, payload); err != nil {
			return err
		}
		caller, _ := value.String(payload, "userId")
		_, err := authorizer.BuildMutations(userID, caller, payload)
		return err
	default:
		return fmt.Errorf("unknown operation %q", operation)
	}
}

// readPayload decodes a payload file into a canonical mapping. YAML is
// chosen by extension; everything else is read as JSON.
func readPayload(path string) (value.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if raw == nil {
		return value.Mapping{}, nil
	}
	if !value.IsMapping(raw) {
		return nil, errors.New("payload must be an object")
	}
	return value.NormalizeMapping(value.Canonical(raw)), nil
}
