// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package lang

import (
	"golang.org/x/text/language"
)

// Keys used by the gateway engine.
const (
	RegisterTitle          = "register_title"
	RegisterInstructions   = "register_instructions"
	FieldName              = "field_name"
	FieldError             = "field_error"
	MandatoryField         = "mandatory_field"
	NotWellFormedField     = "not_well_formed_field"
	NewAccountSubject      = "new_account_message_subject"
	NewAccountBody         = "new_account_message_body"
	UpdateAccountSubject   = "update_account_message_subject"
	UpdateAccountBody      = "update_account_message_body"
	AskPasswordSubject     = "ask_password_subject"
	AskPasswordBody        = "ask_password_body"
	PasswordSavedForSess   = "password_saved_for_session"
	AccountsRegistered     = "accounts_registered"
	ErrorSubject           = "error_subject"
	ErrorBody              = "error_body"
	CommandListAccounts    = "command_list_accounts"
	CommandEditAccount     = "command_edit_account"
	SelectAccount          = "select_account"
	SelectAccountTitle     = "select_account_title"
	NoAccounts             = "no_accounts"
	AccountUpdatedCommand  = "account_updated_command"
	AccountListTitle       = "account_list_title"
	AccountNotFound        = "account_not_found"
	RegistrationNotAllowed = "registration_not_allowed"
)

var builtin = map[language.Tag]map[string]string{
	language.English: {
		RegisterTitle:          "Account registration",
		RegisterInstructions:   "Fill in the form to create or update an account",
		FieldName:              "Account name",
		FieldError:             "Error with '%s' field: %s",
		MandatoryField:         "Field required",
		NotWellFormedField:     "Invalid value",
		NewAccountSubject:      "New account '%s' created",
		NewAccountBody:         "New account created",
		UpdateAccountSubject:   "Account '%s' updated",
		UpdateAccountBody:      "Account updated",
		AskPasswordSubject:     "Password request",
		AskPasswordBody:        "Reply to this message with the password for the following account:\n\tname: %s",
		PasswordSavedForSess:   "Password will be kept during your Jabber session",
		AccountsRegistered:     "%d accounts registered",
		ErrorSubject:           "Error",
		ErrorBody:              "An error occurred with account '%s': %s",
		CommandListAccounts:    "List accounts",
		CommandEditAccount:     "Edit account",
		SelectAccount:          "Account",
		SelectAccountTitle:     "Select the account to edit",
		NoAccounts:             "No account registered",
		AccountUpdatedCommand:  "Account '%s' updated",
		AccountListTitle:       "Registered accounts",
		AccountNotFound:        "Account '%s' not found",
		RegistrationNotAllowed: "Select an account type before registering",
	},
	language.French: {
		RegisterTitle:          "Enregistrement d'un compte",
		RegisterInstructions:   "Remplissez le formulaire pour créer ou modifier un compte",
		FieldName:              "Nom du compte",
		FieldError:             "Erreur dans le champ '%s' : %s",
		MandatoryField:         "Champ obligatoire",
		NotWellFormedField:     "Valeur invalide",
		NewAccountSubject:      "Nouveau compte '%s' créé",
		NewAccountBody:         "Nouveau compte créé",
		UpdateAccountSubject:   "Compte '%s' mis à jour",
		UpdateAccountBody:      "Compte mis à jour",
		AskPasswordSubject:     "Demande de mot de passe",
		AskPasswordBody:        "Répondez à ce message avec le mot de passe du compte suivant :\n\tnom : %s",
		PasswordSavedForSess:   "Le mot de passe sera conservé pendant votre session Jabber",
		AccountsRegistered:     "%d comptes enregistrés",
		ErrorSubject:           "Erreur",
		ErrorBody:              "Une erreur est survenue avec le compte '%s' : %s",
		CommandListAccounts:    "Lister les comptes",
		CommandEditAccount:     "Modifier un compte",
		SelectAccount:          "Compte",
		SelectAccountTitle:     "Choisissez le compte à modifier",
		NoAccounts:             "Aucun compte enregistré",
		AccountUpdatedCommand:  "Compte '%s' mis à jour",
		AccountListTitle:       "Comptes enregistrés",
		AccountNotFound:        "Compte '%s' introuvable",
		RegistrationNotAllowed: "Choisissez un type de compte avant de vous enregistrer",
	},
}
