package appbootstrap

import (
	"context"
	"fmt"

	"driveshare/api"
	"driveshare/config"
	"driveshare/core/acl"
	"driveshare/core/auth"
	"driveshare/core/blob"
	"driveshare/core/docs"
	"driveshare/core/folders"
	"driveshare/core/janitor"
	"driveshare/core/mail"
	"driveshare/core/pdfsign"
	"driveshare/core/share"
	"driveshare/core/signatures"
	"driveshare/core/store"
	"driveshare/core/utils"
)

// BackgroundWorker is a job started with the server and stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

// Runtime is the composed application: the HTTP server and its workers.
type Runtime struct {
	Server  *api.Server
	Workers []BackgroundWorker
}

// Options override pieces of the composition, mostly for tests.
type Options struct {
	Blobs    blob.Store
	Mailer   mail.Sender
	Keystore *pdfsign.Keystore
}

func Compose(ctx context.Context, cfg *config.AppConfig, db *store.DB, logger *utils.Logger, opts Options) (*Runtime, error) {
	users := store.NewUsersStore(db)
	aclRows := store.NewACLStore(db)
	folderRows := store.NewFoldersStore(db)
	shareRows := store.NewSharesStore(db)
	docRows := store.NewDocsStore(db)
	controlRows := store.NewControlsStore(db)
	settingsRows := store.NewSettingsStore(db)
	signatureRows := store.NewSignaturesStore(db)

	blobs := opts.Blobs
	if blobs == nil {
		var err error
		if blobs, err = blob.New(ctx, cfg, logger); err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer = mail.NewSender(cfg.Mail, logger)
	}
	keystore := opts.Keystore
	if keystore == nil && cfg.Signing.KeystorePath != "" {
		ks, err := pdfsign.LoadKeystore(cfg.Signing.KeystorePath, cfg.Signing.KeystorePassword)
		if err != nil {
			logger.Errorf("signing disabled: %v", err)
		} else {
			keystore = ks
		}
	}

	engine, err := acl.NewEngine(aclRows, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("acl engine: %w", err)
	}
	foldersSvc := folders.NewService(cfg, folderRows, shareRows, users, engine, logger)
	shareSvc := share.NewService(cfg, shareRows, foldersSvc, docRows, users, mailer, logger)
	signaturesSvc, err := signatures.NewService(cfg, signatureRows, controlRows, blobs, logger)
	if err != nil {
		return nil, err
	}
	docsSvc := docs.NewService(cfg, docs.Deps{
		Docs:       docRows,
		Controls:   controlRows,
		Settings:   settingsRows,
		Users:      users,
		Folders:    foldersSvc,
		Shares:     shareSvc,
		ACL:        engine,
		Signatures: signaturesSvc,
		Signer:     pdfsign.NewEngine(cfg.Signing, keystore, logger),
		Blobs:      blobs,
	}, logger)

	server := api.NewServer(cfg, api.Deps{
		Sessions:   auth.NewSessionManager(users, cfg, logger),
		Users:      users,
		ACL:        engine,
		Docs:       docsSvc,
		Folders:    foldersSvc,
		Shares:     shareSvc,
		Signatures: signaturesSvc,
		Blobs:      blobs,
	}, logger)

	return &Runtime{
		Server:  server,
		Workers: []BackgroundWorker{janitor.NewScheduler(cfg.Janitor, cfg.Signing.BuildDir, logger)},
	}, nil
}
